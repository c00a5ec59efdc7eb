package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cuemby/lookout/pkg/config"
	"github.com/cuemby/lookout/pkg/events"
	"github.com/cuemby/lookout/pkg/storage"
	"github.com/cuemby/lookout/pkg/types"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect publishers and stored events",
}

var eventsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of every publisher in a running agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := loadViper(cmd)
		if err != nil {
			return err
		}
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.Server.HTTPAddr
		}
		if addr == "" {
			return fmt.Errorf("no HTTP address configured")
		}

		status, err := fetchStatus(cmd.Context(), addr)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PUBLISHER\tSTATE\tSUBSCRIBERS\tSUBSCRIPTIONS\tEVENTS\tCONFIGURES")
		for _, st := range status {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n",
				st.Name, st.State, st.Subscribers, st.Subscriptions, st.Events, st.Configures)
		}
		return w.Flush()
	},
}

var eventsQueryCmd = &cobra.Command{
	Use:   "query SUBSCRIBER",
	Short: "Print the rows a subscriber stored",
	Long: `Print the rows a subscriber stored, oldest first, one JSON object
per line. The store is opened directly, so the agent must not be running
against the same data directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := loadViper(cmd)
		if err != nil {
			return err
		}
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
			cfg.DataDir = dataDir
		}
		since, _ := cmd.Flags().GetDuration("since")

		store, err := storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return err
		}
		defer store.Close()

		var bounds types.Bounds
		if since > 0 {
			bounds.Start = time.Now().Add(-since)
		}
		records, err := store.Generate(cmd.Context(), args[0], bounds)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		for _, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	},
}

var eventsSubscribersCmd = &cobra.Command{
	Use:   "subscribers",
	Short: "List the subscribers with stored rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := loadViper(cmd)
		if err != nil {
			return err
		}
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
			cfg.DataDir = dataDir
		}

		store, err := storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return err
		}
		defer store.Close()

		names, err := store.Subscribers()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SUBSCRIBER\tROWS")
		for _, name := range names {
			n, err := store.Count(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%d\n", name, n)
		}
		return w.Flush()
	},
}

func init() {
	eventsStatusCmd.Flags().String("addr", "", "Agent HTTP address (defaults to server.http_addr)")

	eventsQueryCmd.Flags().String("data-dir", "", "Override data_dir from the configuration")
	eventsQueryCmd.Flags().Duration("since", 0, "Only print rows newer than this")
	eventsSubscribersCmd.Flags().String("data-dir", "", "Override data_dir from the configuration")

	eventsCmd.AddCommand(eventsStatusCmd)
	eventsCmd.AddCommand(eventsQueryCmd)
	eventsCmd.AddCommand(eventsSubscribersCmd)
}

// fetchStatus reads publisher status from a running agent's /events endpoint
func fetchStatus(ctx context.Context, addr string) ([]events.PublisherStatus, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := addr
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		if strings.HasPrefix(url, ":") {
			url = "localhost" + url
		}
		url = "http://" + url
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/events", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach agent at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent returned %s", resp.Status)
	}

	var status []events.PublisherStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	sort.Slice(status, func(i, j int) bool { return status[i].Name < status[j].Name })
	return status, nil
}
