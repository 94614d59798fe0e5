package routes

import (
	"testing"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/common"

	"github.com/stretchr/testify/assert"
)

func TestMaskKey(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in, want string
	}{
		{in: "", want: ""},
		{in: "abc", want: "***"},
		{in: "abcd", want: "****"},
		{in: "sk-123456789", want: "********6789"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, maskKey(tc.in))
		})
	}
}

func TestMaskSettings(t *testing.T) {
	s := maskSettings(common.Settings{
		LLMProvider:  "openai",
		APIKey:       "sk-123456789",
		GoogleAPIKey: "AIzaXYZW",
		GoogleCX:     "cx-1",
	})
	assert.Equal(t, "openai", s.LLMProvider)
	assert.Equal(t, "********6789", s.APIKey)
	assert.Equal(t, "****XYZW", s.GoogleAPIKey)
	assert.Equal(t, "cx-1", s.GoogleCX)
	assert.Empty(t, s.FirecrawlAPIKey)
}
