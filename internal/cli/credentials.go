package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/adatry/adatry/internal/config"
	"github.com/adatry/adatry/internal/models"
	"github.com/adatry/adatry/internal/store"
)

// credentialsCmd groups credential pool management commands
var credentialsCmd = &cobra.Command{
	Use:     "credentials",
	Aliases: []string{"creds", "cred"},
	Short:   "Manage the credential pool",
	Long: `Inspect and modify the provider credential pool.

The pool feeds the least-used-first rotation that backs try-on
generations. Usage counters are shown so the next selection is always
the first row.

Examples:
  # List all credentials, least used first
  adatry credentials list

  # Register a Qwen credential
  adatry credentials add --provider qwen --token sk-...

  # Remove a credential
  adatry credentials remove cred-id`,
}

var credListFlags struct {
	Provider string
}

var credAddFlags struct {
	ID       string
	Provider string
	Token    string
	Endpoint string
	Label    string
}

var credListCmd = &cobra.Command{
	Use:   "list",
	Short: "List credentials ordered by ascending usage",
	RunE:  runCredList,
}

var credAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a credential in the pool",
	RunE:  runCredAdd,
}

var credRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a credential from the pool",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredRemove,
}

func init() {
	credListCmd.Flags().StringVar(&credListFlags.Provider, "provider", "", "Filter by provider (gemini, qwen, wardrobe)")

	credAddCmd.Flags().StringVar(&credAddFlags.ID, "id", "", "Credential ID (generated when omitted)")
	credAddCmd.Flags().StringVar(&credAddFlags.Provider, "provider", "", "Provider name (gemini, qwen, wardrobe)")
	credAddCmd.Flags().StringVar(&credAddFlags.Token, "token", "", "Secret token")
	credAddCmd.Flags().StringVar(&credAddFlags.Endpoint, "endpoint", "", "Deployment endpoint URL (wardrobe)")
	credAddCmd.Flags().StringVar(&credAddFlags.Label, "label", "", "Human-readable label")
	_ = credAddCmd.MarkFlagRequired("provider")
	_ = credAddCmd.MarkFlagRequired("token")

	credentialsCmd.AddCommand(credListCmd)
	credentialsCmd.AddCommand(credAddCmd)
	credentialsCmd.AddCommand(credRemoveCmd)
	RootCmd.AddCommand(credentialsCmd)
}

// openCLIStore opens the persistent store for credential administration.
// Memory storage has nothing to administer from a separate process.
func openCLIStore() (store.Store, error) {
	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	storageCfg := cfg.Storage
	if globalFlags.DBPath != "" {
		storageCfg.Backend = "sqlite"
		storageCfg.Path = globalFlags.DBPath
	}
	if storageCfg.Backend == "memory" {
		return nil, fmt.Errorf("credential administration requires sqlite storage")
	}
	return openStore(storageCfg)
}

func runCredList(cmd *cobra.Command, args []string) error {
	s, err := openCLIStore()
	if err != nil {
		return err
	}
	defer s.Close()

	provider := models.Provider(credListFlags.Provider)
	if provider != "" && !provider.Valid() {
		return fmt.Errorf("unknown provider: %s", provider)
	}

	creds, err := s.ListCredentials(provider)
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}

	if globalFlags.JSON {
		redacted := make([]models.Credential, 0, len(creds))
		for _, cred := range creds {
			redacted = append(redacted, cred.Redacted())
		}
		out, err := json.MarshalIndent(redacted, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(out))
		return nil
	}

	if len(creds) == 0 {
		cmd.Println("No credentials configured.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROVIDER\tLABEL\tUSAGE\tENDPOINT")
	for _, cred := range creds {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", cred.ID, cred.Provider, cred.Label, cred.UsageCount, cred.Endpoint)
	}
	return w.Flush()
}

func runCredAdd(cmd *cobra.Command, args []string) error {
	s, err := openCLIStore()
	if err != nil {
		return err
	}
	defer s.Close()

	id := credAddFlags.ID
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now().UTC()
	cred := &models.Credential{
		ID:        id,
		Provider:  models.Provider(credAddFlags.Provider),
		Label:     credAddFlags.Label,
		Endpoint:  credAddFlags.Endpoint,
		Token:     credAddFlags.Token,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing, ok := s.GetCredential(id); ok {
		cred.UsageCount = existing.UsageCount
		cred.CreatedAt = existing.CreatedAt
	}
	if err := cred.Validate(); err != nil {
		return fmt.Errorf("invalid credential: %w", err)
	}

	s.SetCredential(cred)
	cmd.Printf("Credential %s registered for provider %s\n", cred.ID, cred.Provider)
	return nil
}

func runCredRemove(cmd *cobra.Command, args []string) error {
	s, err := openCLIStore()
	if err != nil {
		return err
	}
	defer s.Close()

	id := args[0]
	if !s.DeleteCredential(id) {
		return fmt.Errorf("credential not found: %s", id)
	}

	cmd.Printf("Credential %s removed\n", id)
	return nil
}
