package main

import (
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"
)

// infraConfig collects the stack settings with their defaults applied.
type infraConfig struct {
	Region      string
	Environment string

	NodeInstanceType string
	NodeDesired      int
	NodeMin          int
	NodeMax          int

	DBInstanceClass string
	DBName          string
	DBUsername      string

	BastionInstanceType string
}

func loadInfraConfig(ctx *pulumi.Context) infraConfig {
	cfg := config.New(ctx, "")

	get := func(key, fallback string) string {
		if v := cfg.Get(key); v != "" {
			return v
		}
		return fallback
	}
	getInt := func(key string, fallback int) int {
		if v := cfg.GetInt(key); v != 0 {
			return v
		}
		return fallback
	}

	return infraConfig{
		Region:              get("region", "us-east-1"),
		Environment:         get("environment", "dev"),
		NodeInstanceType:    get("nodeInstanceType", "t3.large"),
		NodeDesired:         getInt("nodeDesired", 2),
		NodeMin:             getInt("nodeMin", 2),
		NodeMax:             getInt("nodeMax", 4),
		DBInstanceClass:     get("dbInstanceClass", "db.t3.medium"),
		DBName:              get("dbName", "litellm"),
		DBUsername:          get("dbUsername", "litellm"),
		BastionInstanceType: get("bastionInstanceType", "t3.micro"),
	}
}
