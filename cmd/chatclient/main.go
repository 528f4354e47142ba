package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/weiawesome/market-chat/internal/config"
	"github.com/weiawesome/market-chat/internal/domain"
	"github.com/weiawesome/market-chat/internal/identity"
	"github.com/weiawesome/market-chat/internal/protocol"
	"github.com/weiawesome/market-chat/internal/registry"
	"github.com/weiawesome/market-chat/internal/rooms"
	"github.com/weiawesome/market-chat/internal/session"
	"github.com/weiawesome/market-chat/internal/transport"
	pkgconfig "github.com/weiawesome/market-chat/pkg/config"
	"github.com/weiawesome/market-chat/pkg/idgen"
	"github.com/weiawesome/market-chat/pkg/log"
	"github.com/weiawesome/market-chat/pkg/pubsub"
)

const usage = `usage: chatclient [flags] <command> [args]

commands:
  login <accessToken> [userId] [name]
                                     store the login in the session file
  rooms                              list chat rooms
  create <name>                      create a chat room
  product <productId> <title> <seller>
                                     open the chat for a product listing
  join <roomId>                      join a room; each input line is sent,
                                     EOF or Ctrl-C leaves
`

func main() {
	fs := pflag.NewFlagSet("chatclient", pflag.ExitOnError)
	configDir := fs.StringP("config", "c", "", "directory holding config.yaml")
	fs.String("driver", "", "broker driver: stomp, redis, kafka, memory")
	fs.String("log-level", "", "log level")
	fs.String("username", "", "display name override")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage, "\nflags:\n", fs.FlagUsages())
	}
	fs.Parse(os.Args[1:])

	if err := pkgconfig.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	v, err := pkgconfig.Load(*configDir, "config", config.EnvPrefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	v.BindPFlag("broker.driver", fs.Lookup("driver"))
	v.BindPFlag("log.level", fs.Lookup("log-level"))
	v.BindPFlag("identity.username", fs.Lookup("username"))

	cfg, err := config.FromViper(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log)
	l := log.L()

	who, err := identity.Load(cfg.Identity)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to load identity")
	}
	l.Debug().Str(log.FieldUserID, who.UserID).Str(log.FieldUsername, who.Username).Bool("logged_in", who.LoggedIn()).Msg("identity loaded")
	if cfg.Broker.Stomp.Token == "" {
		cfg.Broker.Stomp.Token = who.AccessToken
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := rooms.NewClient(cfg.API.BaseURL, cfg.API.Timeout, who.AccessToken)
	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		os.Exit(2)
	}

	switch args[0] {
	case "login":
		if len(args) < 2 {
			fs.Usage()
			os.Exit(2)
		}
		err = login(cfg.Identity.SessionFile, args[1:], os.Stdout)
	case "rooms":
		err = listRooms(ctx, api, os.Stdout)
	case "create":
		if len(args) < 2 {
			fs.Usage()
			os.Exit(2)
		}
		err = createRoom(ctx, api, strings.Join(args[1:], " "), os.Stdout)
	case "product":
		if len(args) < 4 {
			fs.Usage()
			os.Exit(2)
		}
		err = openProduct(ctx, api, who, args[1], args[2], args[3], os.Stdout)
	case "join":
		if len(args) < 2 {
			fs.Usage()
			os.Exit(2)
		}
		err = join(ctx, cfg, api, who, args[1], os.Stdin, os.Stdout)
	default:
		fs.Usage()
		os.Exit(2)
	}

	if err != nil {
		l.Error().Err(err).Str("command", args[0]).Msg("command failed")
		stop()
		os.Exit(1)
	}
}

// login saves the access token, with an optional id and name, as the
// session file. Missing values come from the token's claims.
func login(sessionFile string, args []string, out io.Writer) error {
	if sessionFile == "" {
		return errors.New("no session file configured")
	}

	in := identity.Config{AccessToken: args[0]}
	if len(args) > 1 {
		in.UserID = args[1]
	}
	if len(args) > 2 {
		in.Username = args[2]
	}
	who, err := identity.Load(in)
	if err != nil {
		return err
	}
	if err := identity.Save(sessionFile, who); err != nil {
		return err
	}
	fmt.Fprintf(out, "logged in as %s (%s)\n", who.Username, who.UserID)
	return nil
}

func listRooms(ctx context.Context, api *rooms.Client, out io.Writer) error {
	list, err := api.List(ctx)
	if err != nil {
		return err
	}
	printRooms(out, list)
	return nil
}

func createRoom(ctx context.Context, api *rooms.Client, name string, out io.Writer) error {
	room, err := api.Create(ctx, rooms.CreateRequest{Name: name})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "created %s\t%s\n", room.RoomID, room.Name)
	return nil
}

func openProduct(ctx context.Context, api *rooms.Client, who domain.Identity, productID, title, seller string, out io.Writer) error {
	opened, err := api.OpenForProduct(ctx, who, productID, title, seller)
	if errors.Is(err, rooms.ErrLoginRequired) {
		fmt.Fprintln(out, "Login is required to use chat.")
		return nil
	}
	if err != nil {
		return err
	}

	if opened.Room != nil {
		fmt.Fprintf(out, "opened %s\t%s\n", opened.Room.RoomID, opened.Room.Name)
		return nil
	}
	fmt.Fprintln(out, "A room for this listing already exists; pick one:")
	printRooms(out, opened.Rooms)
	return nil
}

func printRooms(out io.Writer, list []domain.ChatRoom) {
	for _, r := range list {
		fmt.Fprintf(out, "%s\t%s\t%s\n", r.RoomID, r.Name, r.Preview())
	}
}

func join(ctx context.Context, cfg *config.Config, api *rooms.Client, who domain.Identity, roomID string, in io.Reader, out io.Writer) error {
	l := log.L()

	ids, err := idgen.New(cfg.Chat.MessageID)
	if err != nil {
		return err
	}
	dialer, err := pubsub.NewDialer(cfg.Broker.Config)
	if err != nil {
		return err
	}

	conn := transport.NewManager(dialer, transport.Config{
		ReconnectDelay: cfg.Broker.ReconnectDelay,
		DialTimeout:    cfg.Broker.DialTimeout,
	})
	defer conn.Disconnect()

	dir := rooms.NewDirectory()
	if err := dir.Refresh(ctx, api); err != nil {
		l.Warn().Err(err).Msg("room list unavailable")
	}
	room, ok := dir.Get(roomID)
	if !ok {
		room = domain.ChatRoom{RoomID: roomID, Name: roomID}
		dir.Put(room)
	}

	ctl := session.NewController(conn, registry.New(conn, cfg.Routes), protocol.NewBuilder(ids), cfg.Routes, session.Options{
		DedupWindow:     cfg.Chat.DedupWindow,
		TranscriptLimit: cfg.Chat.TranscriptLimit,
		Tracker:         dir,
	})

	fmt.Fprintf(out, "== %s ==\n", room.Name)
	return ctl.Visit(ctx, room, who, &printer{out: out}, func(s *session.Session) error {
		return readLoop(ctx, s, in, out)
	})
}

// readLoop sends each input line until EOF or ctx ends.
func readLoop(ctx context.Context, s *session.Session, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case line := <-lines:
			if strings.TrimSpace(line) == "" {
				continue
			}
			s.SetInput(line)
			if !s.Submit() {
				fmt.Fprintln(out, "(not sent: waiting for connection)")
			}
		}
	}
}
