package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/capitalize-ai/guided-resolution/internal/model"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "notify.admin.admin-1", AdminSubject("admin-1"))
	assert.Equal(t, "notify.queue.claims", QueueSubject("claims"))
	assert.Equal(t, "flow.session_paused.t-9", FlowEventSubject(model.EventSessionPaused, "t-9"))
}

func TestSubjectTokensAreSanitised(t *testing.T) {
	assert.Equal(t, "notify.admin.a_b_c", AdminSubject("a.b*c"))
	assert.Equal(t, "notify.queue._", QueueSubject(""))
	assert.Equal(t, "flow.node_entered.x_y", FlowEventSubject(model.EventNodeEntered, "x>y"))
}
