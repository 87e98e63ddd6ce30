package imerr

// Code 业务错误码
// 按领域分段：成功0，通用1000，用户2000，好友3000，群组4000，消息5000，
// 文件6000，存储7000，缓存8000，事件总线9000，网络10000，RPC11000，
// WebSocket12000，安全13000
type Code int

const (
	CodeSuccess Code = 0

	// 通用错误码 1000-1999
	CodeUnknown          Code = 1000
	CodeInvalidParams    Code = 1001
	CodeInternal         Code = 1002
	CodeTimeout          Code = 1003
	CodeNotFound         Code = 1004
	CodeAlreadyExists    Code = 1005
	CodePermissionDenied Code = 1006
	CodeRateLimited      Code = 1007
	CodeConflict         Code = 1008

	// 用户相关错误码 2000-2999
	CodeUserNotFound       Code = 2000
	CodeUserAlreadyExists  Code = 2001
	CodeUserAuthFailed     Code = 2002
	CodeUserTokenExpired   Code = 2003
	CodeUserTokenInvalid   Code = 2004
	CodeUserNotApproved    Code = 2005
	CodeUserPasswordWrong  Code = 2006
	CodeUserVerifyFailed   Code = 2007
	CodeUserVerifyExpired  Code = 2008
	CodeUserRegisterFailed Code = 2009

	// 好友相关错误码 3000-3999
	CodeFriendNotFound      Code = 3000
	CodeFriendAlreadyExists Code = 3001
	CodeFriendReqNotFound   Code = 3002
	CodeFriendReqNotPending Code = 3003
	CodeFriendReqDuplicate  Code = 3004
	CodeFriendReqSelf       Code = 3005
	CodeFriendDeleteFailed  Code = 3006

	// 群组相关错误码 4000-4999
	CodeGroupNotFound  Code = 4000
	CodeGroupNotMember Code = 4001

	// 消息相关错误码 5000-5999
	CodeMessageNotFound    Code = 5000
	CodeMessageTooLarge    Code = 5001
	CodeMessageBadKind     Code = 5002
	CodeMessageSelfSend    Code = 5003
	CodeMessageSendFailed  Code = 5004
	CodeMessageNotReceiver Code = 5005

	// 文件相关错误码 6000-6999
	CodeFileNotFound      Code = 6000
	CodeFileReqNotFound   Code = 6001
	CodeFileReqNotPending Code = 6002

	// 存储相关错误码 7000-7999
	CodeStorageError Code = 7000

	// 缓存相关错误码 8000-8999
	CodeCacheError Code = 8000

	// 事件总线相关错误码 9000-9999
	CodeEventBusError Code = 9000

	// 网络相关错误码 10000-10999
	CodeTransportError Code = 10000

	// RPC相关错误码 11000-11999
	CodeRPCError Code = 11000

	// WebSocket相关错误码 12000-12999
	CodeWSBadFrame     Code = 12000
	CodeWSSessionGone  Code = 12001
	CodeWSWriteTimeout Code = 12002

	// 安全相关错误码 13000-13999
	CodeUnauthenticated Code = 13000
	CodeAuthRequired    Code = 13001
)
