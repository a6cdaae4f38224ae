package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/brensch/threes/game"
	"github.com/brensch/threes/rules"
	"github.com/brensch/threes/search"
	"github.com/brensch/threes/store"
	"github.com/brensch/threes/trainer"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pingPeriod      = 54 * time.Second
	minAutoInterval = 20 * time.Millisecond
	topScores       = 10
)

// Command is a client request.
type Command struct {
	Type string `json:"type"`
	// Dir is the move for "move" ("up", "left", "2", ...).
	Dir string `json:"dir,omitempty"`
	// Enabled and IntervalMs configure "autoplay".
	Enabled    bool `json:"enabled,omitempty"`
	IntervalMs int  `json:"intervalMs,omitempty"`
	// Data holds training log lines for "ingest".
	Data string `json:"data,omitempty"`
}

// State is pushed to the client after every change. Q, DisplayQ and Shaping
// entries for illegal moves are null. DisplayQ and Shaping use the shifted
// board before any tile spawns.
type State struct {
	Type       string             `json:"type"`
	Board      game.Board         `json:"board"`
	Score      int                `json:"score"`
	Moves      int                `json:"moves"`
	Hints      []int              `json:"hints"`
	GameOver   bool               `json:"gameOver"`
	Q          [4]*float64        `json:"q"`
	DisplayQ   [4]*float64        `json:"displayQ"`
	Shaping    [4]*float64        `json:"shaping"`
	Confidence [4]float64         `json:"confidence"`
	Best       string             `json:"best,omitempty"`
	Autoplay   bool               `json:"autoplay"`
	Trained    int                `json:"trained,omitempty"`
	Top        []store.GameResult `json:"top,omitempty"`
	Message    string             `json:"message,omitempty"`
}

// server owns the shared networks. mu serializes every call into the
// searcher and trainer, since the networks have no locking of their own.
type server struct {
	mu        sync.Mutex
	searcher  *search.Searcher
	trainer   *trainer.Trainer
	autoTrain bool
	// results is optional; finished autoplay games are recorded in it.
	results  *store.ResultsDB
	seed     func() int64
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func newServer(s *search.Searcher, tr *trainer.Trainer, autoTrain bool, logger *slog.Logger) *server {
	return &server{
		searcher:  s,
		trainer:   tr,
		autoTrain: autoTrain,
		seed:      func() int64 { return time.Now().UnixNano() },
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// session is one websocket client playing its own game.
type session struct {
	srv     *server
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	engine  *rules.Engine
	episode *trainer.Episode
	gameID  string

	autoplay bool
	interval time.Duration
	stopAuto chan struct{}
}

func (s *server) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	sess := &session{
		srv:     s,
		conn:    conn,
		send:    make(chan []byte, 32),
		done:    make(chan struct{}),
		engine:  rules.NewEngine(rand.New(rand.NewSource(s.seed()))),
		episode: &trainer.Episode{},
	}
	s.mu.Lock()
	sess.resetLocked()
	sess.pushLocked("")
	s.mu.Unlock()

	go sess.writePump()
	sess.readPump()
}

func (c *session) readPump() {
	defer func() {
		c.srv.mu.Lock()
		c.stopAutoplayLocked()
		c.srv.mu.Unlock()
		close(c.done)
		c.conn.Close()
	}()
	for {
		var cmd Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.srv.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		c.handle(cmd)
	}
}

func (c *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.srv.logger.Warn("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *session) handle(cmd Command) {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()

	switch cmd.Type {
	case "state":
		c.pushLocked("")
	case "move":
		dir, err := game.ParseDirection(cmd.Dir)
		if err != nil {
			c.pushLocked(err.Error())
			return
		}
		if !c.moveLocked(dir) {
			c.pushLocked("illegal move " + dir.String())
			return
		}
		c.pushLocked("")
	case "best":
		dir, ok := c.srv.searcher.BestMove(c.engine)
		if !ok {
			c.pushLocked("no legal move")
			return
		}
		c.moveLocked(dir)
		c.pushLocked("")
	case "autoplay":
		if cmd.Enabled {
			c.startAutoplayLocked(time.Duration(cmd.IntervalMs) * time.Millisecond)
		} else {
			c.stopAutoplayLocked()
		}
		c.pushLocked("")
	case "reset":
		c.resetLocked()
		c.pushLocked("")
	case "train":
		n := c.trainLocked()
		st := c.stateLocked("")
		st.Trained = n
		c.pushStateLocked(st)
	case "ingest":
		n := c.srv.trainer.TrainFromLogData(cmd.Data)
		st := c.stateLocked("")
		st.Trained = n
		c.pushStateLocked(st)
	case "top":
		if c.srv.results == nil {
			c.pushLocked("results are not recorded")
			return
		}
		top, err := c.srv.results.Top(context.Background(), topScores)
		if err != nil {
			c.srv.logger.Error("failed to query results", "error", err)
			c.pushLocked("results unavailable")
			return
		}
		st := c.stateLocked("")
		st.Top = top
		c.pushStateLocked(st)
	default:
		c.pushLocked("unknown command " + cmd.Type)
	}
}

func (c *session) resetLocked() {
	c.gameID = uuid.NewString()
	c.engine.Reset()
	c.episode.Reset()
	c.episode.Record(c.engine.Board(), 0)
}

func (c *session) moveLocked(dir game.Direction) bool {
	before := c.engine.Score()
	if !c.engine.Move(dir) {
		return false
	}
	c.episode.RecordMove(dir, c.engine.Board(), float64(c.engine.Score()-before))
	return true
}

func (c *session) trainLocked() int {
	n, err := c.srv.trainer.TrainEpisode(c.episode)
	if err != nil {
		c.srv.logger.Error("failed to save value network", "error", err)
	}
	c.episode.Record(c.engine.Board(), 0)
	return n
}

func (c *session) recordLocked() {
	if c.srv.results == nil {
		return
	}
	highest := 0
	for _, row := range c.engine.Board() {
		for _, v := range row {
			highest = max(highest, v)
		}
	}
	err := c.srv.results.Record(context.Background(), store.GameResult{
		GameID:      c.gameID,
		Source:      "serve",
		Mode:        c.srv.searcher.Mode.String(),
		Score:       c.engine.Score(),
		Moves:       c.engine.Moves(),
		HighestTile: highest,
	})
	if err != nil {
		c.srv.logger.Error("failed to record result", "error", err)
	}
}

func (c *session) startAutoplayLocked(interval time.Duration) {
	if interval < minAutoInterval {
		interval = minAutoInterval
	}
	c.stopAutoplayLocked()
	c.autoplay = true
	c.interval = interval
	stop := make(chan struct{})
	c.stopAuto = stop
	go c.autoplayLoop(interval, stop)
}

func (c *session) stopAutoplayLocked() {
	if c.stopAuto != nil {
		close(c.stopAuto)
		c.stopAuto = nil
	}
	c.autoplay = false
}

// autoplayLoop plays the best move on every tick. A finished game is trained
// on (when enabled) and replaced with a fresh one.
func (c *session) autoplayLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-c.done:
			return
		case <-ticker.C:
		}

		c.srv.mu.Lock()
		select {
		case <-stop:
			c.srv.mu.Unlock()
			return
		default:
		}
		msg := ""
		if c.engine.GameOver() {
			score := c.engine.Score()
			trained := 0
			if c.srv.autoTrain {
				trained = c.trainLocked()
			}
			c.srv.logger.Info("autoplay game over", "game", c.gameID, "score", score, "moves", c.engine.Moves(), "trained", trained)
			c.recordLocked()
			c.resetLocked()
			msg = "new game"
		} else if dir, ok := c.srv.searcher.BestMove(c.engine); ok {
			c.moveLocked(dir)
		}
		c.pushLocked(msg)
		c.srv.mu.Unlock()
	}
}

func (c *session) stateLocked(msg string) State {
	st := State{
		Type:     "state",
		Board:    c.engine.Board(),
		Score:    c.engine.Score(),
		Moves:    c.engine.Moves(),
		Hints:    c.engine.Hints(),
		GameOver: c.engine.GameOver(),
		Autoplay: c.autoplay,
		Message:  msg,
	}
	q := c.srv.searcher.QValues(c.engine)
	st.Confidence = search.Confidences(q)
	board := st.Board
	for i, v := range q {
		v := v // per-iteration copy (go.mod targets go1.21)
		if math.IsInf(v, -1) {
			continue
		}
		st.Q[i] = &v
		after := shifted(board, game.Direction(i))
		display := c.srv.searcher.DisplayQ(float64(after.Score()-board.Score()), after)
		shaping := c.srv.searcher.ShapingReward(board, after)
		st.DisplayQ[i] = &display
		st.Shaping[i] = &shaping
	}
	if dir, ok := c.srv.searcher.BestFromQ(c.engine, q); ok {
		st.Best = dir.String()
	}
	return st
}

func (c *session) pushLocked(msg string) {
	c.pushStateLocked(c.stateLocked(msg))
}

func (c *session) pushStateLocked(st State) {
	b, err := json.Marshal(st)
	if err != nil {
		c.srv.logger.Error("failed to encode state", "error", err)
		return
	}
	select {
	case c.send <- b:
	default:
		c.srv.logger.Warn("client send buffer full, dropping state")
	}
}

// shifted applies dir without spawning a tile.
func shifted(b game.Board, dir game.Direction) game.Board {
	rot := dir.Rotations()
	out, _ := rules.Shift(b.Rotate(rot))
	return out.Rotate(4 - rot)
}
