// Package openingbook provides the static reference data backing the
// chess://opening-book, chess://tactical-patterns, and chess://training-stats
// resources. None of it is computed from live game state; it is the same
// kind of fixed catalog a production deployment would normally load from a
// data file, inlined here since the spec treats it as read-only reference
// data rather than a live subsystem.
package openingbook

// Opening is one named opening line with its ECO classification.
type Opening struct {
	Name  string   `json:"name"`
	ECO   string   `json:"eco"`
	Moves []string `json:"moves"` // UCI move sequence from the starting position
}

// Openings is the static catalog, ~12 well-known openings spanning the
// major ECO volumes (A-E).
var Openings = []Opening{
	{Name: "Ruy Lopez", ECO: "C60", Moves: []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1b5"}},
	{Name: "Italian Game", ECO: "C50", Moves: []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1c4"}},
	{Name: "Sicilian Defense", ECO: "B20", Moves: []string{"e2e4", "c7c5"}},
	{Name: "French Defense", ECO: "C00", Moves: []string{"e2e4", "e7e6"}},
	{Name: "Caro-Kann Defense", ECO: "B10", Moves: []string{"e2e4", "c7c6"}},
	{Name: "Queen's Gambit", ECO: "D06", Moves: []string{"d2d4", "d7d5", "c2c4"}},
	{Name: "King's Indian Defense", ECO: "E60", Moves: []string{"d2d4", "g8f6", "c2c4", "g7g6"}},
	{Name: "Nimzo-Indian Defense", ECO: "E20", Moves: []string{"d2d4", "g8f6", "c2c4", "e7e6", "b1c3", "f8b4"}},
	{Name: "English Opening", ECO: "A10", Moves: []string{"c2c4"}},
	{Name: "Scandinavian Defense", ECO: "B01", Moves: []string{"e2e4", "d7d5"}},
	{Name: "Pirc Defense", ECO: "B07", Moves: []string{"e2e4", "d7d6", "d2d4", "g8f6"}},
	{Name: "Grünfeld Defense", ECO: "D80", Moves: []string{"d2d4", "g8f6", "c2c4", "g7g6", "b1c3", "d7d5"}},
}

// TacticalPattern is a named motif with a one-line description, used only
// as static reference data for the tactical-patterns resource.
type TacticalPattern struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// TacticalPatterns is the static catalog backing chess://tactical-patterns.
var TacticalPatterns = []TacticalPattern{
	{Name: "Fork", Description: "A single piece attacks two or more enemy pieces simultaneously."},
	{Name: "Pin", Description: "A piece cannot move without exposing a more valuable piece behind it to attack."},
	{Name: "Skewer", Description: "An attack forces a valuable piece to move, exposing a less valuable one behind it."},
	{Name: "Discovered Attack", Description: "Moving one piece reveals an attack from another piece behind it."},
	{Name: "Back Rank Mate", Description: "Checkmate delivered along a back rank hemmed in by the king's own pawns."},
	{Name: "Zwischenzug", Description: "An intermediate move inserted before the expected recapture or reply."},
}

// TrainingStats is a static snapshot of aggregate self-play figures for the
// training-stats resource; the core never computes or updates it — model
// training is explicitly out of scope per §1.
type TrainingStats struct {
	EnginesTracked int            `json:"enginesTracked"`
	GamesPerEngine map[string]int `json:"gamesPerEngine"`
}

// Stats is the static payload served at chess://training-stats.
var Stats = TrainingStats{
	EnginesTracked: 12,
	GamesPerEngine: map[string]int{
		"AlphaZero": 700000, "LeelaChessZero": 500000, "AlphaFold3": 10000,
		"A3C": 250000, "MCTS": 300000, "Negamax": 1000000, "OpenAI": 150000,
		"QLearning": 400000, "DeepLearning": 350000, "CNN": 280000,
		"DQN": 320000, "Genetic": 120000,
	},
}
