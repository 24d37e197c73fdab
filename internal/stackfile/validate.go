package stackfile

import (
	"errors"
	"fmt"
	"net"

	"k8s.io/apimachinery/pkg/util/validation"
)

// POSIX uid/gid range accepted for access points and mount identities.
const (
	minPosixID = 0
	maxPosixID = 1<<31 - 1
)

var validSubnetClasses = map[string]bool{
	"public":              true,
	"private-with-egress": true,
	"isolated":            true,
}

// Check validates field-level input constraints before the description
// is turned into a topology: identifier syntax, CIDR notation, port
// ranges, subnet classes and POSIX identity ranges. Reference resolution
// is left to topology assembly. All findings are reported together.
func (f *File) Check() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	checkID := func(kind, id string) {
		for _, msg := range validation.IsDNS1123Label(id) {
			fail("%s %q: invalid identifier: %s", kind, id, msg)
		}
	}
	checkCIDR := func(kind, id, cidr string) {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			fail("%s %q: invalid cidr %q", kind, id, cidr)
		}
	}
	checkPort := func(kind, id string, port int) {
		for _, msg := range validation.IsValidPortNum(port) {
			fail("%s %q: invalid port %d: %s", kind, id, port, msg)
		}
	}
	checkPosixID := func(kind, id, field string, value int) {
		for _, msg := range validation.IsInRange(value, minPosixID, maxPosixID) {
			fail("%s %q: invalid %s %d: %s", kind, id, field, value, msg)
		}
	}

	for _, n := range f.Networks {
		checkID("network", n.Name)
		checkCIDR("network", n.Name, n.CIDR)
		for _, s := range n.Subnets {
			checkID("subnet", s.Name)
			checkCIDR("subnet", s.Name, s.CIDR)
			if !validSubnetClasses[s.Class] {
				fail("subnet %q: unknown class %q", s.Name, s.Class)
			}
		}
	}

	for _, b := range f.Boundaries {
		checkID("boundary", b.Name)
		if b.ExternalID != "" && b.Network != "" {
			fail("boundary %q: external_id and network are mutually exclusive", b.Name)
		}
	}

	for _, d := range f.DataStores {
		checkID("datastore", d.Name)
		if d.Port != 0 {
			checkPort("datastore", d.Name, d.Port)
		}
		if !validSubnetClasses[d.SubnetClass] {
			fail("datastore %q: unknown subnet_class %q", d.Name, d.SubnetClass)
		}
	}

	for _, c := range f.Clusters {
		checkID("cluster", c.Name)
		for _, p := range c.Capacity {
			if p.Weight < 0 {
				fail("cluster %q: negative capacity weight for %q", c.Name, p.Provider)
			}
		}
	}

	for _, s := range f.Services {
		checkID("service", s.Name)
		if !validSubnetClasses[s.SubnetClass] {
			fail("service %q: unknown subnet_class %q", s.Name, s.SubnetClass)
		}
		if s.Replicas < 0 {
			fail("service %q: negative replica count %d", s.Name, s.Replicas)
		}
		for _, c := range s.Containers {
			for _, p := range c.Ports {
				checkPort("service", s.Name, p.Container)
			}
			for _, m := range c.Mounts {
				if m.UID != nil {
					checkPosixID("service", s.Name, "mount uid", *m.UID)
				}
				if m.GID != nil {
					checkPosixID("service", s.Name, "mount gid", *m.GID)
				}
			}
		}
	}

	for _, v := range f.Volumes {
		checkID("volume", v.Name)
		if !validSubnetClasses[v.SubnetClass] {
			fail("volume %q: unknown subnet_class %q", v.Name, v.SubnetClass)
		}
		if v.AccessPoint == nil {
			fail("volume %q: missing access_point block", v.Name)
		} else {
			checkPosixID("volume", v.Name, "uid", v.AccessPoint.UID)
			checkPosixID("volume", v.Name, "gid", v.AccessPoint.GID)
		}
	}

	for _, lb := range f.LoadBalancers {
		checkID("loadbalancer", lb.Name)
		if !validSubnetClasses[lb.SubnetClass] {
			fail("loadbalancer %q: unknown subnet_class %q", lb.Name, lb.SubnetClass)
		}
		for _, l := range lb.Listeners {
			checkPort("loadbalancer", lb.Name, l.Port)
			if l.Target != nil {
				checkPort("loadbalancer", lb.Name, l.Target.Port)
			}
		}
	}

	for _, c := range f.Connects {
		checkID("connect", c.Name)
		checkPort("connect", c.Name, c.Port)
		if c.CIDR != "" {
			checkCIDR("connect", c.Name, c.CIDR)
		}
		if c.From == "" && !c.PublicIngress {
			fail("connect %q: from is required unless public_ingress is set", c.Name)
		}
	}

	return errors.Join(errs...)
}
