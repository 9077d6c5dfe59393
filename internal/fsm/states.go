package fsm

// Sub-states of a learner's progress within one curriculum stage.
const (
	StateQuizPending = "quiz_pending"
	StateLinkPending = "link_pending"
	StateDone        = "done"
)

// Transition names reported for every processed message.
const (
	TransitionCompletedAck    = "completed_ack"
	TransitionOffTopic        = "off_topic"
	TransitionOffTopicWarning = "off_topic_warning"
	TransitionQuizPassed      = "quiz_passed"
	TransitionQuizFailed      = "quiz_failed"
	TransitionStageUnlocked   = "stage_unlocked"
	TransitionCurriculumDone  = "curriculum_completed"
	TransitionInvalidLink     = "invalid_link"
)
