package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"livequiz-player/internal/config"
	"livequiz-player/internal/domain"
	"livequiz-player/internal/player"
	"livequiz-player/internal/scorer"
	"livequiz-player/internal/session"
	transport "livequiz-player/internal/transport/http"
)

// NewPlayCmd builds the interactive player client: join by pin, answer on
// stdin, reconnect automatically on restart.
func NewPlayCmd(configPath *string) *cobra.Command {
	var (
		pin  string
		name string
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Join a game as a player",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), *configPath, pin, name)
		},
	}
	cmd.Flags().StringVar(&pin, "pin", "", "game pin to join")
	cmd.Flags().StringVar(&name, "name", "", "nickname shown on the leaderboard")
	_ = cmd.MarkFlagRequired("pin")
	return cmd
}

func runPlay(ctx context.Context, configPath, pin, name string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	store, cleanup, err := buildStore(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	sess, err := store.FindByPin(ctx, pin)
	if err != nil {
		return fmt.Errorf("no game with pin %s: %w", pin, err)
	}

	sessionFile := cfg.Session.File
	if sessionFile == "" {
		home, _ := os.UserHomeDir()
		sessionFile = filepath.Join(home, ".livequiz", "session.json")
	}
	sessions := session.NewManager(session.NewFileStore(sessionFile), log)

	var sc scorer.Scorer
	if cfg.Scorer.URL != "" {
		sc = transport.NewScorerClient(cfg.Scorer.URL)
	} else {
		sc = scorer.NewEngine(store, log)
	}

	m := player.New(player.Config{
		Store:    store,
		Scorer:   sc,
		Sessions: sessions,
		GameID:   sess.GameID,
		Pin:      pin,
		Log:      log,
	})

	if _, ok := sessions.Get(pin); !ok {
		if name == "" {
			return fmt.Errorf("--name is required when joining for the first time")
		}
		if err := m.Join(ctx, name); err != nil {
			return err
		}
	}

	go readAnswers(m)

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	render(m)

	err = <-done
	if err == context.Canceled {
		return nil
	}
	return err
}

// render prints every machine update until the stream stops mattering.
func render(m *player.Machine) {
	lastState := player.State("")
	lastRank := 0
	for u := range m.Updates() {
		if u.Notice != "" {
			fmt.Printf("! %s\n", u.Notice)
		}
		switch u.State {
		case player.StateQuestion:
			if lastState != player.StateQuestion {
				printQuestion(m.Session())
			}
			fmt.Printf("  %2ds left\n", u.Remaining)
		case player.StateWaiting:
			if lastState != player.StateWaiting {
				fmt.Println("answer in, waiting for the host...")
			}
		case player.StateResult:
			if lastState != player.StateResult {
				fmt.Printf("score %d (streak %d)\n", u.Score, u.Streak)
			}
			if u.Rank > 0 && u.Rank != lastRank {
				fmt.Printf("you are #%d on the leaderboard\n", u.Rank)
				lastRank = u.Rank
			}
		case player.StateLobby:
			if lastState != player.StateLobby {
				fmt.Println("in the lobby, waiting for the game to start")
			}
		case player.StatePreparing:
			if lastState != player.StatePreparing {
				fmt.Println("get ready...")
			}
		case player.StateEnded:
			fmt.Printf("game over, final score %d\n", u.Score)
			return
		case player.StateCancelled:
			fmt.Println("the host cancelled the game")
			return
		case player.StateSessionInvalid:
			fmt.Println("session no longer valid, rejoin with --name")
			return
		}
		lastState = u.State
	}
}

func printQuestion(sess domain.GameSession) {
	q, ok := sess.CurrentQuestion()
	if !ok {
		return
	}
	fmt.Printf("\nQ%d: %s\n", sess.CurrentQuestionIndex+1, q.Prompt)
	for i, c := range q.Choices {
		fmt.Printf("  [%d] %s\n", i+1, c)
	}
}

// readAnswers parses stdin lines into answer payloads for the active
// question. Choice inputs are 1-based on screen, 0-based on the wire.
func readAnswers(m *player.Machine) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		q, ok := m.Session().CurrentQuestion()
		if !ok {
			continue
		}
		payload, err := parseAnswer(q.Type, line)
		if err != nil {
			fmt.Printf("! %v\n", err)
			continue
		}
		m.Submit(payload)
	}
}

func parseAnswer(t domain.QuestionType, line string) (domain.AnswerPayload, error) {
	switch t {
	case domain.QuestionSingleChoice, domain.QuestionPollSingle:
		n, err := strconv.Atoi(line)
		if err != nil || n < 1 {
			return domain.AnswerPayload{}, fmt.Errorf("enter a choice number")
		}
		if t == domain.QuestionPollSingle {
			return domain.PollAnswer(n - 1), nil
		}
		return domain.ChoiceAnswer(n - 1), nil
	case domain.QuestionMultiChoice, domain.QuestionPollMulti:
		var picks []int
		for _, part := range strings.Split(line, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || n < 1 {
				return domain.AnswerPayload{}, fmt.Errorf("enter choice numbers like 1,3")
			}
			picks = append(picks, n-1)
		}
		if t == domain.QuestionPollMulti {
			return domain.PollMultiAnswer(picks...), nil
		}
		return domain.MultiChoiceAnswer(picks...), nil
	case domain.QuestionSlider:
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return domain.AnswerPayload{}, fmt.Errorf("enter a number")
		}
		return domain.SliderAnswer(v), nil
	case domain.QuestionFreeText:
		return domain.TextAnswer(line), nil
	default:
		return domain.AnswerPayload{}, fmt.Errorf("this question cannot be answered")
	}
}
