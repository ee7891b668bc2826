package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fadeline/chat/internal/daemon"
	"github.com/fadeline/chat/internal/session"
	"go.uber.org/fx"
)

func main() {
	userFlag := flag.String("user", "", "user id (overrides config default)")
	flag.Parse()

	userID := session.Resolve(*userFlag)
	if err := session.ValidateUserID(userID); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{UserID: userID}),
	)

	app.Run()
}
