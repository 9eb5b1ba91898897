package status

import (
	"context"
	"gsb/internal/archive"
	"gsb/internal/diskusage"
	"gsb/internal/scheduler"
	"runtime"
	"time"
)

// Topic and event names.
const (
	TopicContainer = "container_status"
	TopicBackups   = "backups"
	TopicDisk      = "disk_usage"
	TopicScheduler = "scheduler"
	TopicVersion   = "version"
)

type ContainerStatus struct {
	Status string `json:"status"`
}

type BackupsStatus struct {
	Backups    []archive.Archive `json:"backups"`
	Count      int               `json:"count"`
	TotalBytes int64             `json:"total_bytes"`
}

type VersionInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	StartedAt int64  `json:"started_at"`
}

func NewVersionInfo(version string, startedAt time.Time) VersionInfo {
	return VersionInfo{Version: version, GoVersion: runtime.Version(), StartedAt: startedAt.Unix()}
}

type containerStatuser interface {
	Status(ctx context.Context) (string, error)
}

type archiveLister interface {
	List() ([]archive.Archive, error)
}

type healthReporter interface {
	Health() scheduler.Health
}

func ContainerTopic(c containerStatuser, interval time.Duration) Topic {
	return NewTopic(TopicContainer, interval, func(ctx context.Context) (ContainerStatus, error) {
		s, err := c.Status(ctx)
		return ContainerStatus{Status: s}, err
	})
}

func BackupsTopic(l archiveLister, interval time.Duration) Topic {
	return NewTopic(TopicBackups, interval, func(context.Context) (BackupsStatus, error) {
		return listBackups(l)
	})
}

func listBackups(l archiveLister) (BackupsStatus, error) {
	list, err := l.List()
	if err != nil {
		return BackupsStatus{}, err
	}
	out := BackupsStatus{Backups: list, Count: len(list)}
	for _, a := range list {
		out.TotalBytes += a.SizeBytes
	}
	return out, nil
}

func SchedulerTopic(h healthReporter, interval time.Duration) Topic {
	return NewTopic(TopicScheduler, interval, func(context.Context) (scheduler.Health, error) {
		return h.Health(), nil
	})
}

// DiskTopic reports the filesystem holding the backup directory together
// with the space taken by archives.
func DiskTopic(path string, l archiveLister, interval time.Duration) Topic {
	return NewTopic(TopicDisk, interval, func(context.Context) (diskusage.Usage, error) {
		u, err := diskusage.Stat(path)
		if err != nil {
			return u, err
		}
		backups, err := listBackups(l)
		if err != nil {
			return u, err
		}
		u.BackupsBytes = backups.TotalBytes
		return u, nil
	})
}

func VersionTopic(info VersionInfo) Topic {
	t := NewTopic(TopicVersion, 0, func(context.Context) (VersionInfo, error) {
		return info, nil
	})
	t.Once = true
	return t
}
