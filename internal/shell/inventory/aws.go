package inventory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// AWSSource lists EC2 instances from one region.
type AWSSource struct {
	client *ec2.Client
	region string
	logger *slog.Logger
}

// NewAWSSource creates an EC2 inventory source.
func NewAWSSource(accessKeyID, secretAccessKey, region string, logger *slog.Logger) *AWSSource {
	return &AWSSource{
		client: ec2.New(ec2.Options{
			Region:      region,
			Credentials: credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		}),
		region: region,
		logger: logger.With("source", "aws", "region", region),
	}
}

func (s *AWSSource) Name() string { return "aws" }

// ListInstances returns all non-terminated EC2 instances in the region.
func (s *AWSSource) ListInstances(ctx context.Context) ([]Instance, error) {
	var instances []Instance
	input := &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{
				Name:   aws.String("instance-state-name"),
				Values: []string{"pending", "running", "stopping", "stopped"},
			},
		},
	}

	for {
		out, err := s.client.DescribeInstances(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to describe instances: %w", err)
		}

		for _, reservation := range out.Reservations {
			for _, inst := range reservation.Instances {
				instance := Instance{
					ProviderID: aws.ToString(inst.InstanceId),
					Name:       ec2NameTag(inst),
					PublicIP:   aws.ToString(inst.PublicIpAddress),
					Region:     s.region,
				}
				if inst.State != nil {
					instance.Status = string(inst.State.Name)
				}
				if inst.LaunchTime != nil {
					instance.CreatedAt = *inst.LaunchTime
				}
				instances = append(instances, instance)
			}
		}

		if out.NextToken == nil {
			break
		}
		input.NextToken = out.NextToken
	}

	s.logger.Debug("listed ec2 instances", "count", len(instances))
	return instances, nil
}

func ec2NameTag(inst ec2types.Instance) string {
	for _, tag := range inst.Tags {
		if aws.ToString(tag.Key) == "Name" {
			return aws.ToString(tag.Value)
		}
	}
	return aws.ToString(inst.InstanceId)
}
