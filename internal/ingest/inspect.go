package ingest

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/lidio601/docker-dns-rest/internal/nametree"
	"github.com/lidio601/docker-dns-rest/internal/registry"
)

// validNameRE strips everything Docker itself would reject from a
// container name when it's reused as a DNS label, mirroring
// original_source/dnsrest/monitor.py's RE_VALIDNAME.
var validNameRE = regexp.MustCompile(`[^\w\d.-]`)

const (
	labelComposeNumber  = "com.docker.compose.container-number"
	labelComposeService = "com.docker.compose.service"
	labelComposeProject = "com.docker.compose.project"
	envVirtualHost      = "VIRTUAL_HOST"
)

func sanitizeName(name string) string {
	return strings.TrimSuffix(validNameRE.ReplaceAllString(name, ""), ".")
}

// virtualHosts extracts the comma-separated VIRTUAL_HOST env var value, if
// present, trimming whitespace around each entry.
func virtualHosts(env []string) []string {
	for _, line := range env {
		k, v, ok := strings.Cut(line, "=")
		if !ok || k != envVirtualHost {
			continue
		}
		parts := strings.Split(v, ",")
		out := make([]string, len(parts))
		for i, p := range parts {
			out[i] = strings.TrimSpace(p)
		}
		return out
	}
	return nil
}

// composeNames returns, in addition to sanitizedName itself, the
// "<n>.<service>.<project>" and (when n == 1) "<service>.<project>"
// derived names for a docker-compose-managed container, per
// spec.md §4.C's _inspect derivation.
func composeNames(sanitizedName string, labels map[string]string) []string {
	names := []string{sanitizedName}

	number := 1
	if v, ok := labels[labelComposeNumber]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			number = n
		}
	}
	service := labels[labelComposeService]
	project := labels[labelComposeProject]

	if service != "" && project != "" && labels[labelComposeNumber] != "" {
		names = append(names, strconv.Itoa(number)+"."+service+"."+project)
		if number == 1 {
			names = append(names, service+"."+project)
		}
	}
	return names
}

func withDomain(name, domain string) string {
	if domain == "" {
		return name
	}
	return name + "." + domain
}

// addresses enumerates every NetworkSettings.Networks.*.IPAddress,
// falling back to the legacy top-level IPAddress. The last step looks the
// list entry's HostConfig.NetworkMode up in the same inspect Networks map,
// so it finds no address that the first step did not already find; the
// list entry's own network addresses are not consulted. An empty result
// is permitted: the record is installed but resolves to nothing until a
// later start event supplies addresses.
func addresses(rec InspectResult, summary *ContainerSummary) []string {
	var addrs []string
	for _, ip := range rec.Networks {
		if ip != "" {
			addrs = append(addrs, ip)
		}
	}
	if len(addrs) == 0 && rec.IPAddress != "" {
		addrs = append(addrs, rec.IPAddress)
	}
	if len(addrs) == 0 && summary != nil && summary.NetworkMode != "" {
		if ip, ok := rec.Networks[summary.NetworkMode]; ok && ip != "" {
			addrs = append(addrs, ip)
		}
	}
	return addrs
}

// deriveContainers turns one inspect document into zero or more
// registry.Container records: one per derived name (sanitized name, plus
// compose-derived aliases), each sharing the id and addresses but
// carrying just that one derived name plus any VIRTUAL_HOST labels as its
// own Names to register.
func deriveContainers(rec InspectResult, summary *ContainerSummary, domain string) []registry.Container {
	sanitized := sanitizeName(strings.TrimPrefix(rec.Name, "/"))
	if sanitized == "" {
		return nil
	}

	vhosts := virtualHosts(rec.Env)
	addrs := addresses(rec, summary)

	derived := composeNames(sanitized, rec.Labels)
	out := make([]registry.Container, 0, len(derived))
	for _, d := range derived {
		names := make([]nametree.Label, 0, 1+len(vhosts))
		names = append(names, nametree.NewLabel(withDomain(d, domain)))
		for _, h := range vhosts {
			names = append(names, nametree.NewLabel(h))
		}
		out = append(out, registry.Container{
			ID:      rec.ID,
			Name:    withDomain(d, domain),
			Running: rec.Running,
			Addrs:   addrs,
			Names:   names,
		})
	}
	return out
}
