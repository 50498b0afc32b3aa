package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nhle/frontdesk-notify/internal/model"
)

// Kind names a palette command.
type Kind string

const (
	KindVolume          Kind = "volume"
	KindMute            Kind = "mute"
	KindUnmute          Kind = "unmute"
	KindTest            Kind = "test"
	KindResetPermission Kind = "reset permission"
	KindReconnect       Kind = "reconnect"
	KindSync            Kind = "sync"
	KindClear           Kind = "clear"
	KindState           Kind = "state"
	KindQuit            Kind = "quit"
)

// Command is a parsed palette command.
type Command struct {
	Kind Kind

	// Volume is set for KindVolume.
	Volume float64

	// Type is set for KindTest.
	Type model.NotificationType
}

// Parse turns palette input into a Command. Matching is case-insensitive
// and tolerates extra whitespace.
func Parse(input string) (Command, error) {
	fields := strings.Fields(strings.ToLower(input))
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}

	switch fields[0] {
	case "volume", "vol":
		if len(fields) != 2 {
			return Command{}, fmt.Errorf("usage: volume <0-100>")
		}
		v, err := strconv.ParseFloat(strings.TrimSuffix(fields[1], "%"), 64)
		if err != nil || v < 0 || v > 100 {
			return Command{}, fmt.Errorf("volume must be between 0 and 100, got %q", fields[1])
		}
		return Command{Kind: KindVolume, Volume: v}, nil

	case "mute":
		return Command{Kind: KindMute}, nil

	case "unmute":
		return Command{Kind: KindUnmute}, nil

	case "test":
		t := model.NotificationSystem
		if len(fields) > 1 {
			t = model.NotificationType(fields[1])
			if !t.IsSoundEligible() {
				return Command{}, fmt.Errorf("no alert sound for type %q", fields[1])
			}
		}
		return Command{Kind: KindTest, Type: t}, nil

	case "reset":
		if len(fields) == 2 && fields[1] == "permission" {
			return Command{Kind: KindResetPermission}, nil
		}
		return Command{}, fmt.Errorf("usage: reset permission")

	case "reconnect":
		return Command{Kind: KindReconnect}, nil

	case "sync", "refresh":
		return Command{Kind: KindSync}, nil

	case "clear":
		return Command{Kind: KindClear}, nil

	case "state", "status":
		return Command{Kind: KindState}, nil

	case "quit", "q":
		return Command{Kind: KindQuit}, nil

	default:
		return Command{}, fmt.Errorf("unknown command %q", fields[0])
	}
}
