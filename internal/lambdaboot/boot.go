// Package lambdaboot provides shared Lambda cold-start bootstrap logic.
//
// Every Lambda in the pipeline needs some subset of: AWS config, S3,
// DynamoDB, SSM secret fetch, and startup logging. This package extracts the
// common init patterns so each Lambda's init() is a short composition of
// helpers.
package lambdaboot

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/returns-docintel/internal/logging"
	"github.com/fpang/returns-docintel/internal/workitems"
)

// Default SSM parameter paths for secrets not provided via environment.
const (
	DefaultDocIntelKeyParam     = "/warehouse-returns/prod/docintel-api-key"
	DefaultSubscriptionKeyParam = "/warehouse-returns/prod/apim-subscription-key"
)

// AWSClients holds the core AWS SDK clients used across Lambdas.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// InitAWS loads the default AWS config and returns it along with the SSM
// client used for secret fetches.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// InitS3 creates an S3 client from the shared config.
func InitS3(cfg aws.Config) *s3.Client {
	return s3.NewFromConfig(cfg)
}

// InitWorkItems creates the work-items store from the given table name
// environment variable. Fatals if the env var is empty.
func InitWorkItems(cfg aws.Config, tableEnvVar string) *workitems.DynamoStore {
	tableName := os.Getenv(tableEnvVar)
	if tableName == "" {
		log.Fatal().Str("envVar", tableEnvVar).Msg("DynamoDB table environment variable is required")
	}
	return workitems.NewDynamoStore(dynamodb.NewFromConfig(cfg), tableName)
}

// LoadDocIntelKey fetches the document intelligence API key from SSM
// Parameter Store if DOCINTEL_KEY is not already set. Fatals on error: the
// Lambda cannot do anything useful without it.
func LoadDocIntelKey(ssmClient *ssm.Client) {
	loadSecret(ssmClient, "DOCINTEL_KEY", "SSM_DOCINTEL_KEY_PARAM", DefaultDocIntelKeyParam, true)
}

// LoadSubscriptionKey fetches the piece info subscription key from SSM if
// OCP_APIM_SUBSCRIPTION_KEY is not already set. Non-fatal: enrichment
// degrades to skipped lookups without it.
func LoadSubscriptionKey(ssmClient *ssm.Client) {
	loadSecret(ssmClient, "OCP_APIM_SUBSCRIPTION_KEY", "SSM_SUBSCRIPTION_KEY_PARAM", DefaultSubscriptionKeyParam, false)
}

func loadSecret(ssmClient *ssm.Client, envVar, paramEnvVar, defaultParam string, required bool) {
	if os.Getenv(envVar) != "" {
		return
	}
	paramName := os.Getenv(paramEnvVar)
	if paramName == "" {
		paramName = defaultParam
	}
	start := time.Now()
	result, err := ssmClient.GetParameter(context.Background(), &ssm.GetParameterInput{
		Name:           &paramName,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		if required {
			log.Fatal().Err(err).Str("param", paramName).Msg("Failed to read secret from SSM")
		}
		log.Warn().Err(err).Str("param", paramName).Msg("Secret not found in SSM, dependent feature disabled")
		return
	}
	os.Setenv(envVar, *result.Parameter.Value)
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(start)).Msg("Secret loaded from SSM")
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
