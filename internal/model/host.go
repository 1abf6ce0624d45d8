package model

// HostSnapshot is one JSON object emitted by the per-host agent. It is
// read-only to the collector once parsed, apart from identity defaulting and
// the container state tally.
type HostSnapshot struct {
	NodeName  string `json:"node_name"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"timestamp"`
	// containerd | docker | cri-o | unknown
	Runtime       string  `json:"runtime"`
	OSVersion     *string `json:"os_version,omitempty"`
	KernelVersion *string `json:"kernel_version,omitempty"`
	Uptime        *string `json:"uptime,omitempty"`

	Resources            HostResources  `json:"resources"`
	ContainerStateCounts map[string]int `json:"container_state_counts,omitempty"`
	Services             HostServices   `json:"services"`
	Security             HostSecurity   `json:"security"`
	Kernel               HostKernel     `json:"kernel"`

	ZombieCount  *int              `json:"zombie_count,omitempty"`
	IssueCount   int               `json:"issue_count"`
	Certificates []HostCertificate `json:"node_certificates,omitempty"`
	Disks        []HostDiskMount   `json:"node_disks,omitempty"`
}

// HostResources covers CPU, memory, disk, load and swap.
type HostResources struct {
	CPUCores      *int     `json:"cpu_cores,omitempty"`
	CPUUsed       *float64 `json:"cpu_used,omitempty"`
	CPUUsedPct    *float64 `json:"cpu_used_pct,omitempty"`
	MemoryTotalMi *int64   `json:"memory_total_mib,omitempty"`
	MemoryUsedMi  *int64   `json:"memory_used_mib,omitempty"`
	MemoryUsedPct *float64 `json:"memory_used_pct,omitempty"`
	RootDiskPct   *float64 `json:"root_disk_pct,omitempty"`
	DiskTotalG    *float64 `json:"disk_total_g,omitempty"`
	DiskUsedG     *float64 `json:"disk_used_g,omitempty"`
	DiskUsedPct   *float64 `json:"disk_used_pct,omitempty"`
	Load1m        *string  `json:"load_1m,omitempty"`
	Load5m        *string  `json:"load_5m,omitempty"`
	Load15m       *string  `json:"load_15m,omitempty"`
	SwapEnabled   *bool    `json:"swap_enabled,omitempty"`
	SwapTotalG    *float64 `json:"swap_total_g,omitempty"`
	SwapUsedG     *float64 `json:"swap_used_g,omitempty"`
	SwapUsedPct   *float64 `json:"swap_used_pct,omitempty"`
	Status        string   `json:"status"`
	Detail        string   `json:"detail"`
}

// HostServices covers the runtime and supporting system services.
type HostServices struct {
	Runtime        string `json:"runtime"`
	JournaldActive *bool  `json:"journald_active,omitempty"`
	CrontabPresent *bool  `json:"crontab_present,omitempty"`
	NTPSynced      *bool  `json:"ntp_synced,omitempty"`
	Status         string `json:"status"`
	Detail         string `json:"detail"`
}

// HostSecurity covers SELinux, firewalld and IPVS.
type HostSecurity struct {
	SELinux         *string `json:"selinux,omitempty"`
	FirewalldActive *bool   `json:"firewalld_active,omitempty"`
	IPVSLoaded      *bool   `json:"ipvs_loaded,omitempty"`
	Status          string  `json:"status"`
	Detail          string  `json:"detail"`
}

// HostKernel holds a few sysctl values relevant to cluster networking.
type HostKernel struct {
	IPForward    *string `json:"net_ipv4_ip_forward,omitempty"`
	VMSwappiness *string `json:"vm_swappiness,omitempty"`
	SoMaxConn    *string `json:"net_core_somaxconn,omitempty"`
	Status       string  `json:"status"`
	Detail       string  `json:"detail"`
}

// HostCertificate is a certificate discovered from process command lines.
type HostCertificate struct {
	Path           string `json:"path"`
	ExpirationDate string `json:"expiration_date"`
	DaysRemaining  int    `json:"days_remaining"`
	Status         string `json:"status"`
}

// HostDiskMount is one row of df output.
type HostDiskMount struct {
	Device     string   `json:"device"`
	MountPoint string   `json:"mount_point"`
	FSType     string   `json:"fstype"`
	TotalG     *float64 `json:"total_g,omitempty"`
	UsedG      *float64 `json:"used_g,omitempty"`
	UsedPct    *float64 `json:"used_pct,omitempty"`
}
