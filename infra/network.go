package main

import (
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// networkOutputs carries the VPC pieces the other provision helpers need.
type networkOutputs struct {
	VPC            *ec2.Vpc
	PublicSubnets  []*ec2.Subnet
	PrivateSubnets []*ec2.Subnet
}

func (n *networkOutputs) publicSubnetIDs() pulumi.StringArray {
	ids := make(pulumi.StringArray, len(n.PublicSubnets))
	for i, s := range n.PublicSubnets {
		ids[i] = s.ID()
	}
	return ids
}

func (n *networkOutputs) privateSubnetIDs() pulumi.StringArray {
	ids := make(pulumi.StringArray, len(n.PrivateSubnets))
	for i, s := range n.PrivateSubnets {
		ids[i] = s.ID()
	}
	return ids
}

// provisionNetwork builds the VPC: two public subnets for load balancers and
// the NAT gateway, two private subnets for nodes, the database, and the
// bastion.
func provisionNetwork(ctx *pulumi.Context, naming *resourceNaming, region string) (*networkOutputs, error) {
	vpc, err := ec2.NewVpc(ctx, naming.name("vpc"), &ec2.VpcArgs{
		CidrBlock:          pulumi.String("10.0.0.0/16"),
		EnableDnsHostnames: pulumi.Bool(true),
		EnableDnsSupport:   pulumi.Bool(true),
		Tags:               pulumi.ToStringMap(naming.tags()),
	})
	if err != nil {
		return nil, err
	}

	igw, err := ec2.NewInternetGateway(ctx, naming.name("igw"), &ec2.InternetGatewayArgs{
		VpcId: vpc.ID(),
		Tags:  pulumi.ToStringMap(naming.tags()),
	})
	if err != nil {
		return nil, err
	}

	azSuffixes := []string{"a", "b"}

	var publicSubnets []*ec2.Subnet
	for i, suffix := range azSuffixes {
		subnet, err := ec2.NewSubnet(ctx, naming.name(fmt.Sprintf("public-subnet-%d", i+1)), &ec2.SubnetArgs{
			VpcId:               vpc.ID(),
			CidrBlock:           pulumi.Sprintf("10.0.%d.0/24", i+1),
			AvailabilityZone:    pulumi.String(region + suffix),
			MapPublicIpOnLaunch: pulumi.Bool(true),
			Tags: pulumi.ToStringMap(mergeTags(naming.tags(), map[string]string{
				// The load balancer controller discovers subnets by role tag.
				"kubernetes.io/role/elb": "1",
			})),
		})
		if err != nil {
			return nil, err
		}
		publicSubnets = append(publicSubnets, subnet)
	}

	var privateSubnets []*ec2.Subnet
	for i, suffix := range azSuffixes {
		subnet, err := ec2.NewSubnet(ctx, naming.name(fmt.Sprintf("private-subnet-%d", i+1)), &ec2.SubnetArgs{
			VpcId:            vpc.ID(),
			CidrBlock:        pulumi.Sprintf("10.0.%d.0/24", i+11),
			AvailabilityZone: pulumi.String(region + suffix),
			Tags: pulumi.ToStringMap(mergeTags(naming.tags(), map[string]string{
				"kubernetes.io/role/internal-elb": "1",
			})),
		})
		if err != nil {
			return nil, err
		}
		privateSubnets = append(privateSubnets, subnet)
	}

	// Public route table: straight out through the internet gateway.
	publicRT, err := ec2.NewRouteTable(ctx, naming.name("public-rt"), &ec2.RouteTableArgs{
		VpcId: vpc.ID(),
		Routes: ec2.RouteTableRouteArray{
			&ec2.RouteTableRouteArgs{
				CidrBlock: pulumi.String("0.0.0.0/0"),
				GatewayId: igw.ID(),
			},
		},
		Tags: pulumi.ToStringMap(naming.tags()),
	})
	if err != nil {
		return nil, err
	}

	for i, subnet := range publicSubnets {
		_, err = ec2.NewRouteTableAssociation(ctx, naming.name(fmt.Sprintf("public-rta-%d", i+1)), &ec2.RouteTableAssociationArgs{
			SubnetId:     subnet.ID(),
			RouteTableId: publicRT.ID(),
		})
		if err != nil {
			return nil, err
		}
	}

	// One NAT gateway in the first public subnet; private subnets route
	// their egress through it.
	eip, err := ec2.NewEip(ctx, naming.name("nat-eip"), &ec2.EipArgs{
		Domain: pulumi.String("vpc"),
		Tags:   pulumi.ToStringMap(naming.tags()),
	})
	if err != nil {
		return nil, err
	}

	nat, err := ec2.NewNatGateway(ctx, naming.name("nat"), &ec2.NatGatewayArgs{
		AllocationId: eip.ID(),
		SubnetId:     publicSubnets[0].ID(),
		Tags:         pulumi.ToStringMap(naming.tags()),
	}, pulumi.DependsOn([]pulumi.Resource{igw}))
	if err != nil {
		return nil, err
	}

	privateRT, err := ec2.NewRouteTable(ctx, naming.name("private-rt"), &ec2.RouteTableArgs{
		VpcId: vpc.ID(),
		Routes: ec2.RouteTableRouteArray{
			&ec2.RouteTableRouteArgs{
				CidrBlock:    pulumi.String("0.0.0.0/0"),
				NatGatewayId: nat.ID(),
			},
		},
		Tags: pulumi.ToStringMap(naming.tags()),
	})
	if err != nil {
		return nil, err
	}

	for i, subnet := range privateSubnets {
		_, err = ec2.NewRouteTableAssociation(ctx, naming.name(fmt.Sprintf("private-rta-%d", i+1)), &ec2.RouteTableAssociationArgs{
			SubnetId:     subnet.ID(),
			RouteTableId: privateRT.ID(),
		})
		if err != nil {
			return nil, err
		}
	}

	return &networkOutputs{
		VPC:            vpc,
		PublicSubnets:  publicSubnets,
		PrivateSubnets: privateSubnets,
	}, nil
}

func mergeTags(base, extra map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
