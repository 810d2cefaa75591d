package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/InsulaLabs/insiml/models"
	"github.com/fatih/color"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func stateColor(state string) string {
	switch state {
	case string(models.ModelStateDeployed), string(models.ModelStateUploaded),
		string(models.TaskStateCompleted), string(models.LocalStateLoaded):
		return color.HiGreenString(state)
	case string(models.ModelStatePartiallyDeployed), string(models.ModelStateDeploying),
		string(models.ModelStateUploading), string(models.ModelStateRegistering),
		string(models.LocalStateLoading):
		return color.HiYellowString(state)
	case string(models.ModelStateDeployFailed), string(models.ModelStateRegisterFailed),
		string(models.TaskStateFailed):
		return color.HiRedString(state)
	}
	return state
}

func nodeList(nodes []string) string {
	if len(nodes) == 0 {
		return "-"
	}
	return strings.Join(nodes, ",")
}

func printTaskRef(w io.Writer, ref models.TaskRef, asJSON bool) error {
	if asJSON {
		return printJSON(w, ref)
	}
	fmt.Fprintf(w, "task  %s\nmodel %s\n", color.HiCyanString(ref.TaskID), ref.ModelID)
	return nil
}

func printModelStatus(w io.Writer, s models.ModelStatus, asJSON bool) error {
	if asJSON {
		return printJSON(w, s)
	}
	fmt.Fprintf(w, "model   %s\nstate   %s\nworkers %s\n", s.ModelID, stateColor(string(s.State)), nodeList(s.WorkerNodes))
	if s.Error != "" {
		fmt.Fprintf(w, "error   %s\n", color.HiRedString(s.Error))
	}
	return nil
}

func printTask(w io.Writer, t models.Task, asJSON bool) error {
	if asJSON {
		return printJSON(w, t)
	}
	fmt.Fprintf(w, "task        %s\ntype        %s\nstate       %s\nmodel       %s\ncoordinator %s\nworkers     %s\n",
		t.ID, t.Type, stateColor(string(t.State)), t.ModelID, t.CoordinatorNode, nodeList(t.WorkerNodes))
	if t.Error != "" {
		fmt.Fprintf(w, "error       %s\n", color.HiRedString(t.Error))
	}
	if len(t.NodeErrors) > 0 {
		nodes := make([]string, 0, len(t.NodeErrors))
		for n := range t.NodeErrors {
			nodes = append(nodes, n)
		}
		sort.Strings(nodes)
		for _, n := range nodes {
			fmt.Fprintf(w, "  %s: %s\n", n, t.NodeErrors[n])
		}
	}
	return nil
}

func printLocalModel(w io.Writer, node string, m models.LocalModel, asJSON bool) error {
	if asJSON {
		return printJSON(w, m)
	}
	fmt.Fprintf(w, "node    %s\nmodel   %s\nstate   %s\nworkers %s\n", node, m.ModelID, stateColor(string(m.State)), nodeList(m.WorkerNodes))
	if m.Stats.Count > 0 {
		fmt.Fprintf(w, "latency n=%d mean=%.2fms p50=%.2fms p90=%.2fms p99=%.2fms\n",
			m.Stats.Count, m.Stats.Mean, m.Stats.P50, m.Stats.P90, m.Stats.P99)
	}
	return nil
}

func printModels(w io.Writer, list []*models.ModelArtifact, asJSON bool) error {
	if asJSON {
		return printJSON(w, list)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tVERSION\tFORMAT\tSTATE\tCHUNKS\tWORKERS\tUPDATED")
	for _, m := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			m.ID, m.Name, m.Version, m.Format, stateColor(string(m.State)), m.TotalChunks,
			nodeList(m.WorkerNodes), m.LastUpdatedTime.Format(time.RFC3339))
	}
	return tw.Flush()
}

func printTasks(w io.Writer, list []*models.Task, asJSON bool) error {
	if asJSON {
		return printJSON(w, list)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATE\tMODEL\tCOORDINATOR\tUPDATED")
	for _, t := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Type, stateColor(string(t.State)), t.ModelID, t.CoordinatorNode, t.LastUpdateTime.Format(time.RFC3339))
	}
	return tw.Flush()
}
