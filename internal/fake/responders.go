package fake

import (
	"fmt"
	"math/rand"

	"github.com/woozymasta/legacyping/internal/legacy"
)

// Static always writes frame.
func Static(frame []byte) Responder {
	return func([]byte) []byte { return frame }
}

// Silent never answers.
func Silent() Responder {
	return func([]byte) []byte { return nil }
}

// StatusResponder answers with an encoded status.
func StatusResponder(s legacy.Status) (Responder, error) {
	frame, err := legacy.Encode(s)
	if err != nil {
		return nil, err
	}

	return Static(frame), nil
}

// RandomResponder simulates a busy server whose player count changes per request.
func RandomResponder(maxPlayers int) Responder {
	motds := []string{
		"§aA Minecraft Server",
		"§6Survival §7| §bCreative",
		"§cHardcore §lPvP",
		"Vanilla 1.6.4",
		"§eSkyBlock §f- §dMinigames",
	}
	versions := []string{"1.4.7", "1.5.2", "1.6.2", "1.6.4"}
	protocols := map[string]string{"1.4.7": "51", "1.5.2": "61", "1.6.2": "74", "1.6.4": "78"}

	if maxPlayers <= 0 {
		maxPlayers = 20
	}

	return func([]byte) []byte {
		version := versions[rand.Intn(len(versions))]
		frame, err := legacy.Encode(legacy.Status{
			Protocol:   protocols[version],
			Version:    version,
			MOTD:       fmt.Sprintf("%s §7#%d", motds[rand.Intn(len(motds))], rand.Intn(1000)),
			Players:    rand.Intn(maxPlayers + 1),
			MaxPlayers: maxPlayers,
		})
		if err != nil {
			return nil
		}
		return frame
	}
}
