package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldUserID     = "user_id"
	FieldRuleID     = "rule_id"
	FieldTxnID      = "transaction_id"
	FieldPeriod     = "period"
	FieldMonth      = "month"
	FieldAmount     = "amount"
	FieldHorizon    = "horizon_months"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentForecast = "forecast"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentTrace    = "trace"
)

// Operations defines standard operation names
const (
	OpForecast    = "forecast"
	OpMaterialize = "materialize"
)
