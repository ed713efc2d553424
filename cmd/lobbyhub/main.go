/*
Package main is the interactive lobby client.

It assembles the session manager, REST client, realtime channel, and the lobby
and chat machines, then runs a small command loop on standard input. The loop
is a thin projection of machine state; all behavior lives in the internal
packages.
*/
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"lobbyhub/internal/api"
	"lobbyhub/internal/app/chat"
	"lobbyhub/internal/app/lobby"
	"lobbyhub/internal/app/session"
	"lobbyhub/internal/configs"
	"lobbyhub/internal/pkg/logx"
	"lobbyhub/internal/transport"
)

type app struct {
	session *session.Manager
	lobbies *lobby.Machine
	chat    *chat.Machine
}

func main() {
	cfg, err := configs.LoadClientConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLogger(cfg.Environment == "development")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := session.NewFileTokenStore(cfg.TokenPath)
	if err != nil {
		logx.Fatal(err, "Failed to open token store")
	}

	rest := api.NewClient(cfg.APIBaseURL, &http.Client{Timeout: cfg.HTTPTimeout})
	sess := session.NewManager(rest, store)
	rest.SetAuth(sess)

	channel := transport.NewWSChannel(cfg.WSBaseURL, transport.WithDialTimeout(cfg.ConnectTimeout))

	var lobbies *lobby.Machine
	chatMachine := chat.NewMachine(rest, sess, channel, chat.WithGuard(func(lobbyID int64) error {
		return lobbies.GuardOpen(lobbyID)
	}))
	lobbies = lobby.NewMachine(rest, sess, func(lobbyID int64) {
		chatMachine.Disconnect()
	})

	a := &app{session: sess, lobbies: lobbies, chat: chatMachine}

	if user, _ := sess.RestoreSession(ctx); user != nil {
		fmt.Printf("Welcome back, %s.\n", user.Username)
	}

	a.repl(ctx)

	chatMachine.Disconnect()
	logx.Info("Client stopped.")
}

func (a *app) repl(ctx context.Context) {
	fmt.Println("lobbyhub client. Type 'help' for commands, 'quit' to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		if fields[0] == "quit" || fields[0] == "exit" {
			return
		}

		a.execute(ctx, fields[0], fields[1:])
	}
}

func (a *app) execute(ctx context.Context, cmd string, args []string) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var err error

	switch cmd {
	case "help":
		printHelp()

	case "register":
		err = a.withArgs(args, 3, func() error {
			user, regErr := a.session.Register(ctx, args[0], args[1], args[2])
			if regErr == nil {
				fmt.Printf("Registered and signed in as %s.\n", user.Username)
			}
			return regErr
		})

	case "login":
		err = a.withArgs(args, 2, func() error {
			user, loginErr := a.session.Login(ctx, args[0], args[1])
			if loginErr == nil {
				fmt.Printf("Signed in as %s.\n", user.Username)
			}
			return loginErr
		})

	case "logout":
		a.chat.Disconnect()
		a.session.Logout()
		fmt.Println("Signed out.")

	case "whoami":
		if me := a.session.Identity(); me != nil {
			fmt.Printf("%s <%s> premium=%v\n", me.Username, me.Email, me.IsPremium)
		} else {
			fmt.Println("Not signed in.")
		}

	case "email":
		err = a.withArgs(args, 1, func() error {
			user, updateErr := a.session.UpdateProfile(ctx, args[0])
			if updateErr == nil {
				fmt.Printf("Email updated to %s.\n", user.Email)
			}
			return updateErr
		})

	case "lobbies":
		if err = a.lobbies.Reload(ctx); err == nil {
			printLobbies(a.lobbies.State().Lobbies)
		}

	case "create":
		err = a.withArgs(args, 2, func() error {
			maxParticipants, convErr := strconv.Atoi(args[1])
			if convErr != nil {
				return fmt.Errorf("max participants must be a number")
			}
			created, createErr := a.lobbies.Create(ctx, api.CreateLobbyInput{
				Name:            args[0],
				IsPublic:        true,
				MaxParticipants: maxParticipants,
			})
			if createErr == nil {
				fmt.Printf("Created lobby #%d %q.\n", created.ID, created.Name)
			}
			return createErr
		})

	case "join":
		err = a.withLobbyID(args, func(lobbyID int64) error {
			if joinErr := a.lobbies.Join(ctx, lobbyID); joinErr != nil {
				return joinErr
			}
			if connErr := a.chat.Connect(ctx, lobbyID); connErr != nil {
				return connErr
			}
			a.printDetails(a.lobbies.State().Current)
			return nil
		})

	case "leave":
		err = a.withLobbyID(args, func(lobbyID int64) error {
			// The machine's teardown hook disconnects chat once the leave
			// actually succeeds; a vetoed leave keeps the session live.
			return a.lobbies.Leave(ctx, lobbyID)
		})

	case "details":
		err = a.withLobbyID(args, func(lobbyID int64) error {
			if detailsErr := a.lobbies.LoadDetails(ctx, lobbyID); detailsErr != nil {
				return detailsErr
			}
			a.printDetails(a.lobbies.State().Current)
			return nil
		})

	case "start":
		err = a.withLobbyID(args, func(lobbyID int64) error {
			return a.lobbies.StartGame(ctx, lobbyID)
		})

	case "close":
		err = a.withLobbyID(args, func(lobbyID int64) error {
			return a.lobbies.CloseLobby(ctx, lobbyID)
		})

	case "rename":
		err = a.withArgs(args, 2, func() error {
			lobbyID, parseErr := strconv.ParseInt(args[0], 10, 64)
			if parseErr != nil {
				return fmt.Errorf("invalid lobby id")
			}
			current := a.lobbies.State().Current
			if current == nil || current.ID != lobbyID {
				return fmt.Errorf("load the lobby first (details %d)", lobbyID)
			}
			return a.lobbies.UpdateSettings(ctx, lobbyID, api.CreateLobbyInput{
				Name:            strings.Join(args[1:], " "),
				IsPublic:        current.IsPublic,
				MaxParticipants: current.MaxParticipants,
			})
		})

	case "kick", "ban", "unban", "promote", "demote", "transfer":
		err = a.moderate(ctx, cmd, args)

	case "say":
		err = a.withLobbyID(args, func(lobbyID int64) error {
			return a.chat.Send(ctx, lobbyID, strings.Join(args[1:], " "))
		})

	case "messages":
		state := a.chat.State()
		printMessages(a.chat, state.Messages)
		if !state.Connected {
			fmt.Println("(realtime channel down; log is from last fetch)")
		}

	case "delete":
		err = a.withArgs(args, 2, func() error {
			lobbyID, parseErr := strconv.ParseInt(args[0], 10, 64)
			if parseErr != nil {
				return fmt.Errorf("invalid lobby id")
			}
			messageID, parseErr := strconv.ParseInt(args[1], 10, 64)
			if parseErr != nil {
				return fmt.Errorf("invalid message id")
			}
			return a.chat.Delete(ctx, lobbyID, messageID)
		})

	default:
		fmt.Printf("Unknown command %q. Type 'help'.\n", cmd)
	}

	if err != nil {
		fmt.Printf("error: %v\n", err)
	}
}

// moderate maps a command verb onto its moderation action and dispatches it.
// Transfers prompt for the explicit confirmation the machine requires.
func (a *app) moderate(ctx context.Context, verb string, args []string) error {
	actions := map[string]lobby.ModAction{
		"kick":     lobby.ActionKick,
		"ban":      lobby.ActionBan,
		"unban":    lobby.ActionUnban,
		"promote":  lobby.ActionPromote,
		"demote":   lobby.ActionDemote,
		"transfer": lobby.ActionTransferOwnership,
	}
	action := actions[verb]

	if len(args) < 2 {
		return fmt.Errorf("usage: %s <lobby-id> <user-id> [reason...]", verb)
	}

	lobbyID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid lobby id")
	}
	targetUserID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id")
	}
	reason := strings.Join(args[2:], " ")

	confirmed := false
	if action == lobby.ActionTransferOwnership {
		fmt.Print("Transferring ownership is irreversible. Type 'yes' to confirm: ")
		line := ""
		fmt.Scanln(&line)
		confirmed = line == "yes"
	}

	return a.lobbies.Moderate(ctx, lobbyID, targetUserID, action, reason, confirmed)
}

func (a *app) withArgs(args []string, n int, fn func() error) error {
	if len(args) < n {
		return fmt.Errorf("expected %d arguments", n)
	}
	return fn()
}

func (a *app) withLobbyID(args []string, fn func(int64) error) error {
	if len(args) < 1 {
		return fmt.Errorf("expected a lobby id")
	}
	lobbyID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid lobby id")
	}
	return fn(lobbyID)
}

func printHelp() {
	fmt.Print(`commands:
  register <user> <email> <pass>   create an account and sign in
  login <user> <pass>              sign in
  logout                           sign out (local only)
  whoami                           show the current identity
  email <address>                  update the account email
  lobbies                          reload and list the lobby directory
  create <name> <max>              create a lobby (premium accounts)
  join <lobby-id>                  join a lobby and open its chat
  leave <lobby-id>                 leave a lobby
  details <lobby-id>               show a lobby's roster
  start <lobby-id>                 start the game (owner)
  close <lobby-id>                 close the lobby (owner)
  rename <lobby-id> <name...>      rename the lobby (owner)
  kick|ban <lobby-id> <user-id> <reason...>
  unban|promote|demote|transfer <lobby-id> <user-id>
  say <lobby-id> <text...>         send a chat message
  messages                         print the chat log
  delete <lobby-id> <message-id>   delete a message
  quit
`)
}

func printLobbies(lobbies []api.Lobby) {
	if len(lobbies) == 0 {
		fmt.Println("No lobbies.")
		return
	}
	for _, lb := range lobbies {
		fmt.Printf("#%d %-20q %s %d/%d owner=%s\n",
			lb.ID, lb.Name, lb.Status, lb.CurrentParticipants, lb.MaxParticipants, lb.Owner.Username)
	}
}

func (a *app) printDetails(details *api.LobbyDetails) {
	if details == nil {
		return
	}
	fmt.Printf("#%d %q status=%s\n", details.ID, details.Name, details.Status)
	for _, member := range details.Participants {
		banned := ""
		if member.IsBanned {
			banned = " (banned)"
		}
		actions := offeredActions(a.lobbies.Capabilities(details.ID, member))
		fmt.Printf("  %-16s %s%s%s\n", member.User.Username, member.Role, banned, actions)
	}
}

// offeredActions renders the moderation controls the lattice offers against
// one member, e.g. " [kick ban transfer]".
func offeredActions(caps lobby.Capabilities) string {
	var verbs []string
	for _, candidate := range []struct {
		verb    string
		allowed bool
	}{
		{"kick", caps.Kick},
		{"ban", caps.Ban},
		{"unban", caps.Unban},
		{"promote", caps.Promote},
		{"demote", caps.Demote},
		{"transfer", caps.Transfer},
	} {
		if candidate.allowed {
			verbs = append(verbs, candidate.verb)
		}
	}
	if len(verbs) == 0 {
		return ""
	}
	return " [" + strings.Join(verbs, " ") + "]"
}

func printMessages(m *chat.Machine, messages []api.Message) {
	for _, msg := range messages {
		if msg.IsDeleted {
			fmt.Printf("  [%d] <deleted>\n", msg.ID)
			continue
		}
		marker := " "
		if m.IsOwn(msg) {
			marker = "*"
		}
		fmt.Printf("  [%d]%s %s: %s\n", msg.ID, marker, msg.Sender.Username, msg.Content)
	}
}
