package recording

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
)

// URLPattern matches a recording URL of the form
// https://craig.<tld>/rec/<id>?key=<key>.
var URLPattern = regexp.MustCompile(
	`https?://(craig\.\w+)/rec/([a-zA-Z0-9]+)\?key=([a-zA-Z0-9]+)`,
)

// Event carries the identifiers of the inbound gateway message together with
// its raw payload. Payload can be any JSON-marshalable message shape; the
// detector works on its serialized form so it stays independent of the
// gateway client's types.
type Event struct {
	Payload   any
	AuthorID  string
	ChannelID string
	GuildID   string
	MessageID string
}

// ParseEnded returns the detected recording when the event is a
// recording-ended panel update, or nil when it is anything else.
//
// All conditions must hold: the event is in the watched channel, authored by
// the recorder bot, its components contain the "Recording ended" marker, and
// a well-formed recording URL is present somewhere in the payload.
func ParseEnded(ev Event, watchChannelID, botID string) *Recording {
	if ev.ChannelID != watchChannelID {
		return nil
	}
	if ev.AuthorID != botID {
		return nil
	}

	serialized, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil
	}

	// The recorder updates its panel message to include "Recording ended."
	// when the recording stops. A substring search over the serialized
	// payload sidesteps component-schema parsing entirely.
	if !bytes.Contains(serialized, []byte("Recording ended")) {
		return nil
	}

	match := URLPattern.FindSubmatch(serialized)
	if match == nil {
		return nil
	}

	domain, id, key := string(match[1]), string(match[2]), string(match[3])
	return &Recording{
		ID:        id,
		AccessKey: key,
		URL:       fmt.Sprintf("https://%s/rec/%s?key=%s", domain, id, key),
		GuildID:   ev.GuildID,
		ChannelID: ev.ChannelID,
		MessageID: ev.MessageID,
		Domain:    domain,
	}
}

// FromURL builds a Recording from a manually supplied recording URL.
func FromURL(url, guildID, channelID string) (*Recording, error) {
	match := URLPattern.FindStringSubmatch(url)
	if match == nil {
		return nil, fmt.Errorf("invalid recording URL: %s", url)
	}

	domain, id, key := match[1], match[2], match[3]
	return &Recording{
		ID:        id,
		AccessKey: key,
		URL:       fmt.Sprintf("https://%s/rec/%s?key=%s", domain, id, key),
		GuildID:   guildID,
		ChannelID: channelID,
		Domain:    domain,
	}, nil
}
