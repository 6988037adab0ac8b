package gitcmd

import "fmt"

// Service identifies a pack-protocol engine.
type Service uint8

const (
	UploadPack  Service = iota // client <- fetch <- server
	ReceivePack                // client -> push -> server
)

var services = map[string]Service{
	"git-upload-pack":  UploadPack,
	"git-receive-pack": ReceivePack,
}

// ParseService maps a protocol service name such as "git-upload-pack" to a Service.
func ParseService(name string) (Service, error) {
	service, ok := services[name]
	if !ok {
		return 0, fmt.Errorf("unknown git service %q", name)
	}
	return service, nil
}

// String returns the git subcommand, e.g. "upload-pack".
func (s Service) String() string {
	switch s {
	case UploadPack:
		return "upload-pack"
	case ReceivePack:
		return "receive-pack"
	}
	return fmt.Sprintf("Service(%d)", uint8(s))
}

// Name returns the protocol service name, e.g. "git-upload-pack".
func (s Service) Name() string {
	return "git-" + s.String()
}
