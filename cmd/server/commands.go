package main

import (
	"context"
	"fmt"
	"time"

	"github.com/annel0/blockverse/internal/command"
)

// presenceLookup источник времени последнего появления
type presenceLookup interface {
	LastSeen(ctx context.Context, username string) (time.Time, error)
}

// registerCommands базовые команды сервера
func registerCommands(r *command.Registry, seen presenceLookup) {
	r.Register("help", func(caller command.Caller, parts []string, source string) error {
		caller.SendServerMessage("&eCommands:")
		caller.SendServerList(r.Names())
		return nil
	}, "commands")

	r.Register("seen", func(caller command.Caller, parts []string, source string) error {
		if len(parts) < 2 {
			caller.SendServerMessage("Usage: /seen <player>")
			return nil
		}
		name := parts[1]
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		at, err := seen.LastSeen(ctx, name)
		if err != nil {
			caller.SendServerMessage(fmt.Sprintf("%s has never been seen.", name))
			return nil
		}
		caller.SendServerMessage(fmt.Sprintf("%s was last seen %s ago.", name, time.Since(at).Round(time.Second)))
		return nil
	})
}
