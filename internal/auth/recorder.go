package auth

// Recorder は認証イベントのメトリクスを記録する。
type Recorder interface {
	RecordLogin(method, outcome string)
	RecordSessionCreated()
	RecordSessionRevoked()
	RecordPendingRejected()
	RecordOrphanRepaired()
}

// NopRecorder は何も記録しないRecorder。
type NopRecorder struct{}

func (NopRecorder) RecordLogin(string, string) {}
func (NopRecorder) RecordSessionCreated()      {}
func (NopRecorder) RecordSessionRevoked()      {}
func (NopRecorder) RecordPendingRejected()     {}
func (NopRecorder) RecordOrphanRepaired()      {}
