package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spigell/jojun/internal/ai"
	"github.com/spigell/jojun/internal/history"
	"github.com/spigell/jojun/internal/ingestion"
)

func printOutcomes(w io.Writer, side string, res *ingestion.Result) {
	if res == nil || len(res.Outcomes) == 0 {
		return
	}

	fmt.Fprintf(w, "%s inputs:\n", side)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, o := range res.Outcomes {
		reason := o.Reason
		if reason == "" {
			reason = fmt.Sprintf("%d chars", o.Chars)
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", o.Status, o.Kind, o.Name, reason)
	}
	tw.Flush()
}

func printResult(w io.Writer, res *ai.FullAnalysisResult) {
	fmt.Fprintf(w, "\nFit score: %d/100\n", res.FitScore)
	if res.OverallComment != "" {
		fmt.Fprintf(w, "%s\n", res.OverallComment)
	}
	fmt.Fprintln(w)

	printCompetencyTable(w, &res.CompetencyResult)

	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}

	fmt.Fprintln(w, "\nResume suggestions")
	printSection(w, res.Suggestions, res.SuggestionBlocks)

	fmt.Fprintln(w, "\nInterview questions")
	printSection(w, res.InterviewQuestions, res.QuestionBlocks)
}

// printCompetencyTable prints one row per category. Missing scores, possible
// with tolerated length mismatches, are shown as "-".
func printCompetencyTable(w io.Writer, res *ai.CompetencyResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tCOMPETENCY\tREQUIRED\tHELD\tGAP")
	for i, category := range res.Categories {
		job, jobOK := scoreAt(res.JobScores, i)
		user, userOK := scoreAt(res.UserScores, i)
		gap := "-"
		if jobOK && userOK {
			gap = strconv.Itoa(user - job)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, category, formatScore(job, jobOK), formatScore(user, userOK), gap)
	}
	tw.Flush()
}

func printSection(w io.Writer, text *string, blocks []ai.Block) {
	if text == nil {
		fmt.Fprintln(w, "  not available for this run")
		return
	}
	if len(blocks) == 0 {
		fmt.Fprintln(w, indent(*text))
		return
	}

	n := 0
	for _, b := range blocks {
		if b.ParseError != "" {
			fmt.Fprintln(w, indent(b.Raw))
			continue
		}
		n++
		for i, f := range b.Fields {
			prefix := "   "
			if i == 0 {
				prefix = fmt.Sprintf("%2d.", n)
			}
			fmt.Fprintf(w, "%s %s: %s\n", prefix, f.Label, strings.ReplaceAll(f.Value, "\n", "\n      "))
		}
	}
}

func printHistory(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "history is empty")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTITLE\tFIT\tCREATED")
	for i, e := range entries {
		created := "-"
		if !e.Data.CreatedAt.IsZero() {
			created = e.Data.CreatedAt.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", i, e.Title, e.FitScore, created)
	}
	tw.Flush()
}

func scoreAt(scores []int, i int) (int, bool) {
	if i < len(scores) {
		return scores[i], true
	}
	return 0, false
}

func formatScore(score int, ok bool) string {
	if !ok {
		return "-"
	}
	return strconv.Itoa(score)
}

func indent(text string) string {
	return "  " + strings.ReplaceAll(strings.TrimSpace(text), "\n", "\n  ")
}
