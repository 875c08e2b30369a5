// Package audit records every human request and its outcome. Recorder is a
// hitl.Observer; GormStore and MongoStore are the two persistence backends.
package audit
