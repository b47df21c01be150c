package models

// JobType identifies the kind of background job, used for icon and badge selection
type JobType string

const (
	JobTypeUpload     JobType = "upload"
	JobTypeSlides     JobType = "processSlides"
	JobTypeEmail      JobType = "email"
	JobTypeSMS        JobType = "sms"
	JobTypeAttendance JobType = "attendance"
	JobTypeGroups     JobType = "groups"
	JobTypeGeneric    JobType = "job"
	JobTypeUnknown    JobType = "unknown"
)

var knownJobTypes = map[JobType]bool{
	JobTypeUpload:     true,
	JobTypeSlides:     true,
	JobTypeEmail:      true,
	JobTypeSMS:        true,
	JobTypeAttendance: true,
	JobTypeGroups:     true,
	JobTypeGeneric:    true,
}

// Normalize maps empty or unrecognized job types to JobTypeUnknown
func (t JobType) Normalize() JobType {
	if knownJobTypes[t] {
		return t
	}
	return JobTypeUnknown
}

// ParseJobType converts a wire value into a JobType, falling back to unknown
func ParseJobType(s string) JobType {
	return JobType(s).Normalize()
}
