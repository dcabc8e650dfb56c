package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"littlechat/chat"
	"littlechat/db"
	"littlechat/llm"
	"littlechat/utils"
)

var version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("littlechat v%s\n", version)
		os.Exit(0)
	}

	logger, err := utils.NewLogger(utils.GetLogPath())
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	logger.Info("Starting littlechat v%s", version)

	actualConfigPath := *configPath
	if actualConfigPath == "" {
		actualConfigPath, err = utils.EnsureDefaultConfig()
		if err != nil {
			logger.Error("Failed to create default config: %v", err)
			os.Exit(1)
		}
		logger.Info("Using config file: %s", actualConfigPath)
	}
	config, err := utils.LoadConfig(actualConfigPath)
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		os.Exit(1)
	}

	database, err := db.New(config.Data.DBPath)
	if err != nil {
		logger.Error("Failed to initialize database: %v", err)
		os.Exit(1)
	}
	defer database.Close()
	logger.Info("Database initialized: %s", config.Data.DBPath)

	conversations := db.NewConversationService(database, logger)
	settings := db.NewSettingService(database, conversations, logger)

	client := llm.NewClient(llm.Config{
		APIKey:  config.API.APIKey,
		BaseURL: config.API.BaseURL,
		Model:   config.API.Model,
	}, logger)

	session := chat.NewSession(conversations, settings, client, chat.Config{
		Model:               config.API.Model,
		MaxTokens:           config.Chat.MaxTokens,
		DefaultSystemPrompt: config.Chat.DefaultSystemPrompt,
		DebounceInterval:    time.Duration(config.Chat.DebounceMs) * time.Millisecond,
	}, logger)

	// Ctrl-C aborts the in-flight stream instead of killing the process.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	utils.SafeGo(logger, "signal-watcher", func() {
		for range sigCh {
			session.CancelStream()
			fmt.Println("\n[stream canceled]")
		}
	})

	repl(session, conversations, settings, client)
	logger.Info("littlechat stopped")
}

func repl(session *chat.Session, conversations *db.ConversationService, settings *db.SettingService, client *llm.Client) {
	fmt.Println("littlechat — type a message, or /help for commands")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var pending []*db.FileData

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := command(line, session, conversations, settings, client, &pending); quit {
				return
			}
			continue
		}

		err := session.Send(context.Background(), line, pending, func(chunk string) {
			fmt.Print(chunk)
		})
		pending = nil
		fmt.Println()
		if err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func command(line string, session *chat.Session, conversations *db.ConversationService, settings *db.SettingService, client *llm.Client, pending *[]*db.FileData) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit":
		return true

	case "/help":
		fmt.Println(`/new                 start a fresh conversation
/list                recent conversations
/open <id>           load a conversation
/delete <id>         delete a conversation
/search <text>       search titles
/grep <text>         search message contents
/settings            list chat settings
/use <id>            bind a chat setting
/attach <path>       attach a file to the next message
/export <id> <path>  export a conversation (.md or .json)
/models              list known models
/quit                exit`)

	case "/new":
		session.Reset()
		fmt.Println("new conversation")

	case "/list":
		convs, err := conversations.RecentConversationTitles(20)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		for _, c := range convs {
			fmt.Printf("%d  %s  %s\n", c.ID,
				time.UnixMilli(c.Timestamp).Format("2006-01-02 15:04"), c.Title)
		}

	case "/open":
		id, ok := parseID(args)
		if !ok {
			break
		}
		if err := session.Load(id); err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		for _, m := range session.Messages() {
			fmt.Printf("[%s] %s\n", m.Role, m.Content)
		}

	case "/delete":
		id, ok := parseID(args)
		if !ok {
			break
		}
		if err := conversations.DeleteConversation(id); err != nil {
			fmt.Printf("error: %v\n", err)
		}

	case "/search", "/grep":
		if len(args) == 0 {
			fmt.Println("usage: " + cmd + " <text>")
			break
		}
		text := strings.Join(args, " ")
		var (
			convs []*db.Conversation
			err   error
		)
		if cmd == "/search" {
			convs, err = conversations.SearchConversationsByTitle(text)
		} else {
			convs, err = conversations.SearchWithinConversations(text)
		}
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		for _, c := range convs {
			fmt.Printf("%d  %s\n", c.ID, c.Title)
		}

	case "/settings":
		list, err := settings.ListSettings()
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		for _, s := range list {
			fmt.Printf("%d  %-20s %s\n", s.ID, s.Name, s.Description)
		}

	case "/use":
		id, ok := parseID(args)
		if !ok {
			break
		}
		if err := session.UseSetting(id); err != nil {
			fmt.Printf("error: %v\n", err)
		}

	case "/attach":
		if len(args) != 1 {
			fmt.Println("usage: /attach <path>")
			break
		}
		fd, err := utils.LoadFileData(args[0])
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		*pending = append(*pending, fd)
		fmt.Printf("attached %s (%s)\n", fd.Filename, fd.MimeType)

	case "/export":
		if len(args) != 2 {
			fmt.Println("usage: /export <id> <path>")
			break
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fmt.Println("bad conversation id")
			break
		}
		conv, err := conversations.GetConversationByID(id)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		messages, err := conversations.ChatMessages(conv)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		format := utils.FormatJSON
		if strings.HasSuffix(args[1], ".md") {
			format = utils.FormatMarkdown
		}
		if err := utils.ExportConversation(conv, messages, args[1], format); err != nil {
			fmt.Printf("error: %v\n", err)
		}

	case "/models":
		models, err := client.ListModels(context.Background())
		if err != nil {
			fmt.Printf("listing failed (%v), known models:\n", err)
			for _, id := range llm.KnownModelIDs() {
				fmt.Println("  " + id)
			}
			break
		}
		for _, m := range models {
			vision := ""
			if m.SupportsImages {
				vision = "  vision"
			}
			fmt.Printf("%-22s ctx %-7d cutoff %s%s\n", m.ID, m.ContextWindow, m.KnowledgeCutoff, vision)
		}

	default:
		fmt.Println("unknown command, /help for help")
	}
	return false
}

func parseID(args []string) (int64, bool) {
	if len(args) != 1 {
		fmt.Println("usage: <command> <id>")
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Println("bad id")
		return 0, false
	}
	return id, true
}
