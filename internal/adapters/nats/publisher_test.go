package natsadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocationSubject(t *testing.T) {
	tests := []struct {
		session string
		want    string
	}{
		{"tab-1", "pourzone.location.tab-1"},
		{"a.b", "pourzone.location.a_b"},
		{"x*>y z", "pourzone.location.x__y_z"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LocationSubject(tt.session))
	}
}

func TestStreamsCoverSubjects(t *testing.T) {
	var subjects []string
	for _, s := range Streams() {
		subjects = append(subjects, s.Subjects...)
	}
	assert.Contains(t, subjects, "pourzone.location.>")
	assert.Contains(t, subjects, "pourzone.zones.>")
}
