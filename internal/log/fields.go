package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldExpenseID   = "expense_id"
	FieldTitle       = "title"
	FieldAmountCents = "amount_cents"
	FieldCategory    = "category"
	FieldDate        = "date"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentStorage  = "storage"
	ComponentSettings = "settings"
	ComponentSecure   = "secure"
	ComponentService  = "service"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentReports  = "reports"
	ComponentCache    = "cache"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpSearch   = "search"
	OpStats    = "stats"
	OpMigrate  = "migrate"
	OpRepair   = "repair"
	OpReset    = "reset"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)
