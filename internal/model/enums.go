package model

type CaptureMode string

const (
	CaptureModeIdle       CaptureMode = "idle"
	CaptureModeIndividual CaptureMode = "individual"
	CaptureModeBatch      CaptureMode = "batch"
)

type AttendanceMode string

const (
	AttendanceEntry        AttendanceMode = "entrada"
	AttendanceCapture      AttendanceMode = "captura"
	AttendanceSelfRegister AttendanceMode = "captura_self"
)

type NotificationKind string

const (
	NotificationDenial            NotificationKind = "denial"
	NotificationUnknownCredential NotificationKind = "unknown_credential"
	NotificationOutOfSchedule     NotificationKind = "out_of_schedule"
	NotificationEnrollment        NotificationKind = "enrollment"
	NotificationSelfRegister      NotificationKind = "self_register"
	NotificationCapture           NotificationKind = "capture"
)

const (
	DenyUnregistered = "unregistered"
	DenyNotEnrolled  = "not enrolled in active subject"
	DenyWrongCard    = "wrong card"
)
