package logx

const (
	FieldAppName         = "app-name"
	FieldAppVersion      = "app-version"
	FieldCacheKey        = "cache-key"
	FieldCachePattern    = "cache-pattern"
	FieldDurationMs      = "duration-ms"
	FieldError           = "error"
	FieldHTTPMethod      = "http-method"
	FieldHTTPRequest     = "http-request"
	FieldHTTPResponse    = "http-response"
	FieldIP              = "ip"
	FieldOperation       = "operation"
	FieldOrderID         = "order-id"
	FieldProductID       = "product-id"
	FieldRequestBody     = "request-body"
	FieldRequestID       = "request-id"
	FieldResponseBody    = "response-body"
	FieldResponseHeaders = "response-headers"
	FieldResponseStatus  = "response-status"
	FieldRoute           = "route"
	FieldStack           = "stack"
	FieldTaskType        = "task-type"
	FieldTraceID         = "trace-id"
	FieldURL             = "url"
	FieldUserID          = "user-id"
	FieldVariantID       = "variant-id"
)
