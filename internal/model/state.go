package model

// ── 打卡状态机 ──
//
//	not_clocked_in --clock_in--> clocked_in --clock_out--> not_clocked_in

// ActivityState 员工在某门店的打卡状态
type ActivityState string

const (
	ActivityNotClockedIn ActivityState = "not_clocked_in"
	ActivityClockedIn    ActivityState = "clocked_in"
)

// ActivityAction 打卡动作
type ActivityAction string

const (
	ActionClockIn  ActivityAction = "clock_in"
	ActionClockOut ActivityAction = "clock_out"
)

type activityTransition struct {
	from   ActivityState
	action ActivityAction
}

var activityTransitions = map[activityTransition]ActivityState{
	{ActivityNotClockedIn, ActionClockIn}: ActivityClockedIn,
	{ActivityClockedIn, ActionClockOut}:   ActivityNotClockedIn,
}

// NextActivityState 返回动作后的状态，非法转换返回 false
func NextActivityState(from ActivityState, action ActivityAction) (ActivityState, bool) {
	to, ok := activityTransitions[activityTransition{from, action}]
	return to, ok
}

// ── 代班/换班申请状态机 ──
//
//	pending  --accept-->  accepted --approve--> approved
//	pending  --cancel-->  cancelled
//	accepted --reject-->  rejected
//	pending|accepted --expire--> cancelled
//
// approved / rejected / cancelled 为终态

// ShiftRequestStatus 申请状态
type ShiftRequestStatus string

const (
	RequestPending   ShiftRequestStatus = "pending"
	RequestAccepted  ShiftRequestStatus = "accepted"
	RequestApproved  ShiftRequestStatus = "approved"
	RequestRejected  ShiftRequestStatus = "rejected"
	RequestCancelled ShiftRequestStatus = "cancelled"
)

// RequestAction 申请动作
type RequestAction string

const (
	RequestActionAccept  RequestAction = "accept"
	RequestActionApprove RequestAction = "approve"
	RequestActionReject  RequestAction = "reject"
	RequestActionCancel  RequestAction = "cancel"
	RequestActionExpire  RequestAction = "expire"
)

type requestTransition struct {
	from   ShiftRequestStatus
	action RequestAction
}

var requestTransitions = map[requestTransition]ShiftRequestStatus{
	{RequestPending, RequestActionAccept}:   RequestAccepted,
	{RequestPending, RequestActionCancel}:   RequestCancelled,
	{RequestAccepted, RequestActionApprove}: RequestApproved,
	{RequestAccepted, RequestActionReject}:  RequestRejected,
	{RequestPending, RequestActionExpire}:   RequestCancelled,
	{RequestAccepted, RequestActionExpire}:  RequestCancelled,
}

// NextRequestStatus 返回动作后的状态，非法转换返回 false
func NextRequestStatus(from ShiftRequestStatus, action RequestAction) (ShiftRequestStatus, bool) {
	to, ok := requestTransitions[requestTransition{from, action}]
	return to, ok
}

// IsTerminal 是否终态
func (s ShiftRequestStatus) IsTerminal() bool {
	return s == RequestApproved || s == RequestRejected || s == RequestCancelled
}

// ActiveRequestStatuses 非终态集合
var ActiveRequestStatuses = []ShiftRequestStatus{RequestPending, RequestAccepted}
