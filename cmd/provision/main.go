// Package main 是资源准备命令行工具：上传文档、创建向量库和助手。
package main

import (
	"context"
	"fmt"
	"os"
	"slr-assistant-go/internal/config"
	"slr-assistant-go/internal/repository"
	"slr-assistant-go/internal/service"
	"slr-assistant-go/pkg/assistant"
	"slr-assistant-go/pkg/database"
	"slr-assistant-go/pkg/log"
	"slr-assistant-go/pkg/storage"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
)

func main() {
	app := &cli.App{
		Name:  "provision",
		Usage: "Register the sea level rise document set and assistant with the provider",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   "./configs/config.yaml",
			},
		},
		Commands: []*cli.Command{
			documentsCommand(),
			assistantCommand(),
			allCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func forceFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:    "force",
		Aliases: []string{"f"},
		Usage:   "Create new provider resources even if the ledger already has them",
	}
}

func documentsCommand() *cli.Command {
	return &cli.Command{
		Name:      "documents",
		Usage:     "Upload documents and create a vector store",
		ArgsUsage: "[PATH...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "name",
				Aliases: []string{"n"},
				Usage:   "Vector store name (defaults to documents.vector_store_name)",
			},
			forceFlag(),
		},
		Action: func(c *cli.Context) error {
			env, err := setup(c)
			if err != nil {
				return err
			}
			defer env.close()

			set, err := env.provision.RegisterDocuments(c.Context, env.paths(c), env.documentOptions(c))
			if err != nil {
				return err
			}
			printDocumentSet(set)
			return nil
		},
	}
}

func assistantCommand() *cli.Command {
	return &cli.Command{
		Name:  "assistant",
		Usage: "Create an assistant bound to a vector store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "vector-store",
				Usage:    "Vector store `ID` returned by the documents command",
				Required: true,
			},
			forceFlag(),
		},
		Action: func(c *cli.Context) error {
			env, err := setup(c)
			if err != nil {
				return err
			}
			defer env.close()

			id, err := env.provision.RegisterAssistant(c.Context, env.assistantSpec(c, c.String("vector-store")))
			if err != nil {
				return err
			}
			fmt.Printf("assistant: %s\n", id)
			return nil
		},
	}
}

func allCommand() *cli.Command {
	return &cli.Command{
		Name:      "all",
		Usage:     "Register documents and then the assistant",
		ArgsUsage: "[PATH...]",
		Flags:     []cli.Flag{forceFlag()},
		Action: func(c *cli.Context) error {
			env, err := setup(c)
			if err != nil {
				return err
			}
			defer env.close()

			result, err := env.provision.Provision(c.Context, env.paths(c), env.documentOptions(c), env.assistantSpec(c, ""))
			if err != nil {
				return err
			}
			printDocumentSet(result.Documents)
			fmt.Printf("assistant: %s\n", result.AssistantID)
			fmt.Println("set assistant.id (or SLR_ASSISTANT_ID) to pin this assistant for the server")
			return nil
		},
	}
}

type provisionEnv struct {
	cfg       *config.Config
	provision service.ProvisionService
	close     func()
}

// setup 加载配置并组装登记服务。密钥缺失时直接失败。
func setup(c *cli.Context) (*provisionEnv, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log.Init("warn", "console", "")

	apiKey, err := config.LoadCredential(cfg.OpenAI)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		return nil, err
	}
	return newProvisionEnv(cfg, apiKey, db)
}

// newProvisionEnv 在已打开的数据库上组装登记服务，失败时负责关闭数据库。
func newProvisionEnv(cfg *config.Config, apiKey string, db *gorm.DB) (*provisionEnv, error) {
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if err := repository.AutoMigrate(db); err != nil {
		closeDB()
		return nil, fmt.Errorf("failed to migrate ledger: %w", err)
	}

	var archive storage.DocumentArchive
	if cfg.MinIO.Enabled() {
		minioArchive, err := storage.NewMinIOArchive(context.Background(), cfg.MinIO)
		if err != nil {
			closeDB()
			return nil, fmt.Errorf("failed to init document archive: %w", err)
		}
		archive = minioArchive
	}

	client := assistant.NewClient(assistant.Config{
		APIKey:         apiKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		OrgID:          cfg.OpenAI.OrgID,
		RequestTimeout: cfg.OpenAI.RequestTimeout,
	})

	return &provisionEnv{
		cfg:       cfg,
		provision: service.NewProvisionService(client, repository.NewProvisionRepository(db), archive),
		close: func() {
			closeDB()
			log.Sync()
		},
	}, nil
}

func (e *provisionEnv) paths(c *cli.Context) []string {
	if c.NArg() > 0 {
		return c.Args().Slice()
	}
	return e.cfg.Documents.Paths
}

func (e *provisionEnv) documentOptions(c *cli.Context) service.DocumentOptions {
	name := c.String("name")
	if name == "" {
		name = e.cfg.Documents.VectorStoreName
	}
	return service.DocumentOptions{VectorStoreName: name, Force: c.Bool("force")}
}

func (e *provisionEnv) assistantSpec(c *cli.Context, vectorStoreID string) service.AssistantSpec {
	return service.AssistantSpec{
		Name:          e.cfg.Assistant.Name,
		Instructions:  e.cfg.Assistant.Instructions,
		Model:         e.cfg.Assistant.Model,
		VectorStoreID: vectorStoreID,
		Force:         c.Bool("force"),
	}
}

func printDocumentSet(set service.DocumentSet) {
	state := "created"
	if set.Reused {
		state = "reused"
	}
	fmt.Printf("vector store: %s (%s)\n", set.VectorStoreID, state)
	for _, doc := range set.Documents {
		fmt.Printf("  %s  %s  %s\n", doc.ProviderFileID, doc.FileMD5, doc.FileName)
	}
}
