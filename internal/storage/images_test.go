package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImageStoreURL(t *testing.T) {
	s := NewImageStore(nil, "moodboard-images", "https://cdn.example.com/")
	assert.Equal(t, "https://cdn.example.com/moodboard-images/images/u1/01HX.png", s.URL("images/u1/01HX.png"))
}
