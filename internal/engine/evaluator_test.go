package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/guided-resolution/internal/model"
)

func photos(types ...string) []model.File {
	files := make([]model.File, len(types))
	for i, mt := range types {
		files[i] = model.File{ID: "f" + string(rune('0'+i)), Name: "photo", MimeType: mt}
	}
	return files
}

func TestValidateResponseSingleChoice(t *testing.T) {
	def := loadDamageFlow(t)
	node, ok := def.Node("damage_assessment")
	require.True(t, ok)

	v, err := ValidateResponse(node, "customer_caused")
	require.NoError(t, err)
	assert.Equal(t, "customer_caused", v)

	v, err = ValidateResponse(node, "defect")
	require.NoError(t, err)
	assert.Equal(t, "manufacturing_defect", v, "option id normalises to the option value")

	_, err = ValidateResponse(node, "aliens")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidateResponseTextInput(t *testing.T) {
	node := &model.QuestionNode{NodeBase: model.NodeBase{ID: "notes"}, ResponseType: model.ResponseTextInput}

	v, err := ValidateResponse(node, "box was crushed")
	require.NoError(t, err)
	assert.Equal(t, "box was crushed", v)

	_, err = ValidateResponse(node, "   ")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ValidateResponse(node, 42)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidateResponseWrongNodeKind(t *testing.T) {
	def := loadDamageFlow(t)
	node, ok := def.Node("damage_upload_photos")
	require.True(t, ok)

	_, err := ValidateResponse(node, "yes")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidateAttachments(t *testing.T) {
	def := loadDamageFlow(t)
	node, ok := def.Node("damage_upload_photos")
	require.True(t, ok)

	tests := []struct {
		name    string
		files   []model.File
		wantErr bool
	}{
		{"below minimum", photos("image/jpeg"), true},
		{"at minimum", photos("image/jpeg", "image/png"), false},
		{"at maximum", photos("image/jpeg", "image/jpeg", "image/jpeg", "image/png", "image/png"), false},
		{"above maximum", photos("image/jpeg", "image/jpeg", "image/jpeg", "image/png", "image/png", "image/png"), true},
		{"disallowed type with valid count", photos("image/jpeg", "application/pdf"), true},
		{"disallowed type below minimum", photos("video/mp4"), true},
		{"mime parameters ignored", photos("image/jpeg; charset=binary", "IMAGE/PNG"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAttachments(node, tt.files)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateAttachmentsWildcard(t *testing.T) {
	node := &model.AttachmentNode{
		NodeBase: model.NodeBase{ID: "docs"},
		Config:   model.AttachmentConfig{MinFiles: 1, MaxFiles: 3, AcceptedTypes: []string{"image/*", "application/pdf"}},
	}

	assert.NoError(t, ValidateAttachments(node, photos("image/webp", "application/pdf")))
	assert.ErrorIs(t, ValidateAttachments(node, photos("text/plain")), ErrValidation)
}

func TestValidateAttachmentsWrongNodeKind(t *testing.T) {
	def := loadDamageFlow(t)
	node, ok := def.Node("damage_intro")
	require.True(t, ok)

	assert.ErrorIs(t, ValidateAttachments(node, photos("image/png", "image/png")), ErrValidation)
}
