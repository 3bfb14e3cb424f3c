package router

import (
	"context"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "cpbot/internal/runtime/supervisor"
	kit "cpbot/internal/transport"
	logx "cpbot/pkg/logx"
)

type CommandManager struct {
	mu       sync.RWMutex
	cmds     map[string]*Command // name and alias -> command
	ordered  []Command
	cbs      map[string]CallbackRoute
	owners   []int64
	chatID   int64
	defaultT time.Duration

	log     logx.Logger
	adapter kit.Adapter

	jobs chan func()
}

// NewCommandManager builds a manager that only answers chatID (0 allows any
// chat). owners gates AccessOwnerOnly commands.
func NewCommandManager(log logx.Logger, adapter kit.Adapter, chatID int64, owners []int64) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CommandManager{
		cmds:     map[string]*Command{},
		cbs:      map[string]CallbackRoute{},
		owners:   append([]int64(nil), owners...),
		chatID:   chatID,
		defaultT: 30 * time.Second,
		log:      log.With(logx.String("comp", "telegram.router")),
		adapter:  adapter,
		jobs:     make(chan func(), 64),
	}
}

// SetAccess updates the chat and owner gates. Safe during hot reload.
func (m *CommandManager) SetAccess(chatID int64, owners []int64) {
	m.mu.Lock()
	m.chatID = chatID
	m.owners = append([]int64(nil), owners...)
	m.mu.Unlock()
}

// SetRegistry installs the commands and callback routes. /help is added
// automatically.
func (m *CommandManager) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	cmds = append(cmds, Command{
		Name:        "help",
		Aliases:     []string{"start"},
		Description: "list commands",
		Usage:       "/help [command]",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, m.helpText(req.Args))
		},
	})

	table := map[string]*Command{}
	ordered := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		cc := c
		cc.Name = name
		table[name] = &cc
		for _, a := range cc.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if _, taken := table[a]; a != "" && !taken {
				table[a] = &cc
			}
		}
		ordered = append(ordered, cc)
	}
	slices.SortFunc(ordered, func(a, b Command) int { return strings.Compare(a.Name, b.Name) })

	cb := map[string]CallbackRoute{}
	for _, r := range cbs {
		if r.Scope == "" || r.Action == "" || r.Handle == nil {
			continue
		}
		cb[r.key()] = r
	}

	m.mu.Lock()
	m.cmds, m.ordered, m.cbs = table, ordered, cb
	m.mu.Unlock()
}

// SyncMenu pushes the command list to the platform menu when supported.
func (m *CommandManager) SyncMenu(ctx context.Context) {
	up, ok := m.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	m.mu.RLock()
	menu := buildMenu(m.ordered)
	m.mu.RUnlock()
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := up.UpdateMenuCommands(cctx, menu); err != nil {
		m.log.Warn("menu update failed", logx.Err(err))
	}
}

// DispatchLoop routes updates until ctx is done or updates is closed.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := max(runtime.NumCPU(), 2)
	sup := rtsup.New(ctx, rtsup.WithLogger(m.log), rtsup.WithCancelOnError(false))
	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(m.jobs)))

	for i := 0; i < workers; i++ {
		sup.GoRestart("command.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-m.jobs:
					job()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.route(ctx, up)
		}
	}
}

func (m *CommandManager) tryEnqueue(fn func()) bool {
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

func (m *CommandManager) route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		m.routeMessage(ctx, up)
	case kit.UpdateCallback:
		m.routeCallback(ctx, up)
	}
}

func (m *CommandManager) allowedChat(chatID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chatID == 0 || m.chatID == chatID
}

func (m *CommandManager) isOwner(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// No owners configured means the allowed chat is trusted.
	return len(m.owners) == 0 || slices.Contains(m.owners, id)
}

func (m *CommandManager) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil || !m.allowedChat(msg.ChatID) {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return
	}
	word := commandWord(parts[0])
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	m.mu.RLock()
	c, ok := m.cmds[word]
	m.mu.RUnlock()
	if !ok {
		_, _ = m.adapter.SendText(ctx, chat, "unknown command, try /help", nil)
		return
	}
	cmd := *c
	if cmd.Access == AccessOwnerOnly && !m.isOwner(msg.FromID) {
		_, _ = m.adapter.SendText(ctx, chat, "unauthorized", nil)
		return
	}

	rid := newReqID()
	req := &Request{
		Update:  up,
		Chat:    chat,
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    parts[1:],
		ReqID:   rid,
		Adapter: m.adapter,
		Logger:  m.log.With(logx.String("rid", rid), logx.String("cmd", cmd.Name)),
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = m.defaultT
	}
	final := Chain(cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWReplyError(),
		MWTimeout(timeout),
	)
	if !m.tryEnqueue(func() { _ = final(ctx, req) }) {
		_, _ = m.adapter.SendText(ctx, chat, "busy, try again", nil)
	}
}

func (m *CommandManager) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil || !m.allowedChat(cb.ChatID) {
		return
	}
	parts := strings.SplitN(strings.TrimSpace(cb.Data), ":", 3)
	if len(parts) < 2 {
		return
	}
	payload := ""
	if len(parts) == 3 {
		payload = parts[2]
	}

	m.mu.RLock()
	route, ok := m.cbs[parts[0]+":"+parts[1]]
	m.mu.RUnlock()
	if !ok {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	if route.Access == AccessOwnerOnly && !m.isOwner(cb.FromID) {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "forbidden")
		return
	}

	rid := newReqID()
	req := &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID},
		FromID:  cb.FromID,
		Command: "cb:" + route.key(),
		Payload: payload,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger:  m.log.With(logx.String("rid", rid), logx.String("cmd", "cb:"+route.key())),
	}
	timeout := route.Timeout
	if timeout <= 0 {
		timeout = m.defaultT
	}
	final := Chain(
		func(c context.Context, r *Request) error { return route.Handle(c, r, payload) },
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(timeout),
	)
	if !m.tryEnqueue(func() {
		_ = final(ctx, req)
		// Clears the button's loading state.
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "")
	}) {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "busy")
	}
}
