package bot

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/alpinn/mirrorbot/internal/chat"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

func TestMapDiscordError(t *testing.T) {
	assert.NoError(t, mapDiscordError(nil))

	unknownMessage := &discordgo.RESTError{
		Message: &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownMessage},
	}
	assert.ErrorIs(t, mapDiscordError(unknownMessage), chat.ErrMessageNotFound)

	notFound := &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusNotFound},
	}
	assert.ErrorIs(t, mapDiscordError(notFound), chat.ErrMessageNotFound)

	forbidden := &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusForbidden},
	}
	assert.NotErrorIs(t, mapDiscordError(forbidden), chat.ErrMessageNotFound)

	plain := fmt.Errorf("network down")
	assert.Equal(t, plain, mapDiscordError(plain))
}

func TestEndpointChoicesCoverCatalog(t *testing.T) {
	choices := endpointChoices()
	assert.Len(t, choices, 6)
	names := make([]string, 0, len(choices))
	for _, choice := range choices {
		names = append(names, choice.Name)
	}
	assert.Contains(t, names, "news")
	assert.Contains(t, names, "association")
}

func TestParseQueryPairs(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected map[string]string
		wantErr  bool
	}{
		{name: "empty", raw: "", expected: nil},
		{name: "spaces only", raw: "   ", expected: nil},
		{name: "single pair", raw: "page=2", expected: map[string]string{"page": "2"}},
		{
			name:     "space separated",
			raw:      "page=2 limit=5",
			expected: map[string]string{"page": "2", "limit": "5"},
		},
		{
			name:     "ampersand separated",
			raw:      "page=2&limit=5",
			expected: map[string]string{"page": "2", "limit": "5"},
		},
		{name: "empty value", raw: "q=", expected: map[string]string{"q": ""}},
		{name: "missing equals", raw: "page", wantErr: true},
		{name: "missing key", raw: "=2", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			params, err := parseQueryPairs(tc.raw)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, params)
		})
	}
}

func TestCommandContextFollowsStart(t *testing.T) {
	b := &Bot{}
	assert.NoError(t, b.commandContext().Err())

	ctx, cancel := context.WithCancel(context.Background())
	b.mu.Lock()
	b.runCtx = ctx
	b.mu.Unlock()

	assert.NoError(t, b.commandContext().Err())
	cancel()
	assert.Error(t, b.commandContext().Err())
}

func TestOptionMap(t *testing.T) {
	options := []*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "endpoint", Type: discordgo.ApplicationCommandOptionString, Value: "news"},
		{Name: "all", Type: discordgo.ApplicationCommandOptionBoolean, Value: true},
	}
	indexed := optionMap(options)
	assert.Equal(t, "news", indexed["endpoint"].StringValue())
	assert.True(t, indexed["all"].BoolValue())
}
