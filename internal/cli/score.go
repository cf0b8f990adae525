package cli

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/robalobadob/numguess/internal/game"
)

var scoreCmd = &cobra.Command{
	Use:   "score GUESS SECRET",
	Short: "Score a guess against a secret and print the result as JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScore(cmd.OutOrStdout(), args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}

func runScore(w io.Writer, guess, secret string) error {
	if !game.ValidDigits(guess) {
		return errors.Wrapf(game.ErrInvalidGuess, "guess %q", guess)
	}
	if !game.ValidDigits(secret) {
		return errors.Wrapf(game.ErrInvalidSecret, "secret %q", secret)
	}
	sg := game.Score(guess, secret)
	sg.Seq = 1
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		game.ScoredGuess
		Won bool `json:"won"`
	}{sg, sg.Won()})
}
