package game

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Replay is a recorded match: the initial setup plus every accepted
// action in order. Because the engine is deterministic for a given
// seed, the action log reconstructs every intermediate state; no
// snapshots are stored.
type Replay struct {
	GameID string
	Setups []PlayerSetup
	Opts   Options
	Steps  []ReplayStep
}

// ReplayStep is one accepted action and the checksum of the state it
// produced.
type ReplayStep struct {
	PlayerID int
	Action   ActionType
	Data     ActionData
	Checksum string
}

type replayMetadata struct {
	GameID    string
	Timestamp time.Time
	Version   int
	StepCount int
}

// Recorder captures a match as it is played. Create it with the same
// setups and options handed to the engine, then feed it every accepted
// action.
type Recorder struct {
	logger *zap.Logger

	mu     sync.Mutex
	replay *Replay
}

// NewRecorder starts recording a match. The deck lists are copied, so
// the engine consuming the originals does not disturb the record. Opts
// must carry the seed the engine actually shuffled with: for a match
// initialized with a zero seed, read the resolved one from
// GameState.Seed after InitializeGame.
func NewRecorder(logger *zap.Logger, gameID string, setups []PlayerSetup, opts Options) *Recorder {
	copied := make([]PlayerSetup, len(setups))
	for i, s := range setups {
		copied[i] = PlayerSetup{Name: s.Name, Deck: cloneCards(s.Deck)}
	}
	return &Recorder{
		logger: logger,
		replay: &Replay{GameID: gameID, Setups: copied, Opts: opts},
	}
}

// Record appends one accepted action. Pass the checksum of the state
// the action produced; Rebuild verifies against it.
func (r *Recorder) Record(playerID int, action ActionType, data ActionData, checksum string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replay.Steps = append(r.replay.Steps, ReplayStep{
		PlayerID: playerID,
		Action:   action,
		Data:     data,
		Checksum: checksum,
	})
	r.logger.Debug("recorded step",
		zap.String("game_id", r.replay.GameID),
		zap.String("action", string(action)),
		zap.Int("step", len(r.replay.Steps)))
}

// Replay returns the record captured so far.
func (r *Recorder) Replay() *Replay {
	r.mu.Lock()
	defer r.mu.Unlock()
	steps := make([]ReplayStep, len(r.replay.Steps))
	copy(steps, r.replay.Steps)
	return &Replay{
		GameID: r.replay.GameID,
		Setups: r.replay.Setups,
		Opts:   r.replay.Opts,
		Steps:  steps,
	}
}

// Rebuild reconstructs the match on a fresh engine by reapplying the
// action log. Each step's checksum is verified, so a divergence in the
// engine or a corrupted record surfaces as an error.
func (rp *Replay) Rebuild(logger *zap.Logger, resolver RulesResolver) (*Engine, error) {
	engine := NewEngine(logger, resolver)

	setups := make([]PlayerSetup, len(rp.Setups))
	for i, s := range rp.Setups {
		setups[i] = PlayerSetup{Name: s.Name, Deck: cloneCards(s.Deck)}
	}
	if _, err := engine.InitializeGame(setups, rp.Opts); err != nil {
		return nil, fmt.Errorf("replay init: %w", err)
	}
	// Checksums cover the game ID, so the rebuilt state must carry the
	// recorded one.
	engine.State().GameID = rp.GameID
	if err := engine.StartGame(); err != nil {
		return nil, fmt.Errorf("replay start: %w", err)
	}

	for i, step := range rp.Steps {
		state, err := engine.ProcessAction(step.PlayerID, step.Action, step.Data)
		if err != nil {
			return nil, fmt.Errorf("replay step %d (%s): %w", i, step.Action, err)
		}
		if step.Checksum != "" && state.Checksum() != step.Checksum {
			return nil, fmt.Errorf("replay step %d (%s): checksum mismatch", i, step.Action)
		}
	}
	return engine, nil
}

// SaveToFile writes the replay to <dir>/<gameID>.replay, gzipped.
func (rp *Replay) SaveToFile(directory string) error {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("creating replay directory: %w", err)
	}

	filename := filepath.Join(directory, fmt.Sprintf("%s.replay", rp.GameID))
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("creating replay file: %w", err)
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	defer gz.Close()

	enc := gob.NewEncoder(gz)
	meta := replayMetadata{
		GameID:    rp.GameID,
		Timestamp: time.Now(),
		Version:   1,
		StepCount: len(rp.Steps),
	}
	if err := enc.Encode(&meta); err != nil {
		return fmt.Errorf("encoding replay metadata: %w", err)
	}
	if err := enc.Encode(rp); err != nil {
		return fmt.Errorf("encoding replay: %w", err)
	}
	return nil
}

// LoadReplayFromFile reads a replay previously written by SaveToFile.
func LoadReplayFromFile(directory, gameID string) (*Replay, error) {
	filename := filepath.Join(directory, fmt.Sprintf("%s.replay", gameID))
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("opening replay file: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("reading replay file: %w", err)
	}
	defer gz.Close()

	dec := gob.NewDecoder(gz)
	var meta replayMetadata
	if err := dec.Decode(&meta); err != nil {
		return nil, fmt.Errorf("decoding replay metadata: %w", err)
	}
	if meta.Version != 1 {
		return nil, fmt.Errorf("unsupported replay version %d", meta.Version)
	}

	var rp Replay
	if err := dec.Decode(&rp); err != nil {
		return nil, fmt.Errorf("decoding replay: %w", err)
	}
	if len(rp.Steps) != meta.StepCount {
		return nil, fmt.Errorf("replay truncated: expected %d steps, got %d", meta.StepCount, len(rp.Steps))
	}
	return &rp, nil
}
