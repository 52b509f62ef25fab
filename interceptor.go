package stepwire

// EventInterceptor allows external packages to observe every outbound
// event before it is framed. Interceptors run on the executor's goroutine
// and must not block.
type EventInterceptor func(taskID string, ev Event)
