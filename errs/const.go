package errs

const (
	ErrCode_OK        = 0
	ErrCode_Unknown   = 1
	ErrCode_Unmarshal = 2
	ErrCode_Marshal   = 3

	// Runtime-specific codes: the small set of errors spec.md requires to
	// cross an API boundary as values, in addition to being logged.
	ErrCode_ChannelFull           = 100
	ErrCode_ChannelDisconnected   = 101
	ErrCode_TimerQueueFull        = 110
	ErrCode_TimerUnknown          = 111
	ErrCode_WorkerAlreadyStopped  = 120
	ErrCode_WorkerAlreadyStopping = 121
)

var (
	Unknown             = CreateCodeError(ErrCode_Unknown, "UNKNOWN")
	Unmarshal           = CreateCodeError(ErrCode_Unmarshal, "UNMARSHAL")
	Marshal              = CreateCodeError(ErrCode_Marshal, "MARSHAL")
	ChannelFull          = CreateCodeError(ErrCode_ChannelFull, "CHANNEL_FULL")
	ChannelDisconnected  = CreateCodeError(ErrCode_ChannelDisconnected, "CHANNEL_DISCONNECTED")
	TimerQueueFull       = CreateCodeError(ErrCode_TimerQueueFull, "TIMER_QUEUE_FULL")
	TimerUnknown         = CreateCodeError(ErrCode_TimerUnknown, "TIMER_UNKNOWN")
	WorkerAlreadyStopped = CreateCodeError(ErrCode_WorkerAlreadyStopped, "WORKER_ALREADY_STOPPED")
	WorkerAlreadyStopping = CreateCodeError(ErrCode_WorkerAlreadyStopping, "WORKER_ALREADY_STOPPING")
)
