package execmd

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/Robpol86/robutils/common"
	"github.com/Robpol86/robutils/logger"
	"github.com/Robpol86/robutils/util"
)

// remoteOptions carries per-run settings for RunRemote.
type remoteOptions struct {
	user           string
	keyPath        string
	port           int
	connectTimeout time.Duration
}

// RemoteOption configures a RunRemote call.
type RemoteOption func(*remoteOptions)

// WithUser sets the SSH username. Defaults to the owner of this process.
func WithUser(user string) RemoteOption {
	return func(o *remoteOptions) { o.user = user }
}

// WithKeyPath sets the private key file used for public key authentication.
// Without it, the default keys under ~/.ssh and any running SSH agent are
// tried.
func WithKeyPath(path string) RemoteOption {
	return func(o *remoteOptions) { o.keyPath = path }
}

// WithPort sets the SSH port. Defaults to 22.
func WithPort(port int) RemoteOption {
	return func(o *remoteOptions) { o.port = port }
}

// WithConnectTimeout bounds the dial and authentication handshake.
func WithConnectTimeout(d time.Duration) RemoteOption {
	return func(o *remoteOptions) { o.connectTimeout = d }
}

// RunRemote executes the Job's command on host over SSH and starts its
// monitor. Only hosts present in the local known_hosts files are accepted;
// the library never prompts to trust a new host. Connection and
// authentication failures are recorded on the Job as StateConnectionFailed
// rather than returned: the returned error is non-nil only when the Job was
// already started. A vector command is flattened to a space-joined string
// before submission, so arguments needing individual quoting should use a
// shell-string Job locally instead.
func (j *Job) RunRemote(host string, opts ...RemoteOption) error {
	if err := j.claimStart(); err != nil {
		return err
	}

	o := remoteOptions{
		port:           common.DefaultSSHPort,
		connectTimeout: common.DefaultConnectTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.user == "" {
		name, err := util.CurrentUsername()
		if err != nil {
			j.setConnectionFailed(err)
			return nil
		}
		o.user = name
	}

	b, err := dialRemote(j, host, o)
	if err != nil {
		logger.Log.WithHost(host).Debugf("remote session failed: %v", err)
		j.setConnectionFailed(err)
		return nil
	}

	logger.Log.WithHost(host).WithField(common.LogFieldJob, j.commandLine()).
		Debug("remote command started")
	newMonitor(j, b).start()
	return nil
}

// remoteBackend supervises one command running in an SSH session. Output
// arrives through chunk channels fed by one reader goroutine per stream;
// the monitor drains them without ever blocking for more data.
type remoteBackend struct {
	job    *Job
	client *ssh.Client
	sess   *ssh.Session

	stdoutCh chan []byte
	stderrCh chan []byte

	waitErr  error
	waitDone chan struct{}

	agentConn net.Conn
	closeOnce sync.Once
}

func dialRemote(job *Job, host string, o remoteOptions) (*remoteBackend, error) {
	hostKeys, err := trustedHostKeys()
	if err != nil {
		return nil, err
	}

	b := &remoteBackend{
		job:      job,
		stdoutCh: make(chan []byte, 64),
		stderrCh: make(chan []byte, 64),
		waitDone: make(chan struct{}),
	}

	auth, err := b.authMethods(o)
	if err != nil {
		return nil, err
	}

	cfg := &ssh.ClientConfig{
		User:            o.user,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         o.connectTimeout,
	}

	endpoint := net.JoinHostPort(host, strconv.Itoa(o.port))
	client, err := ssh.Dial("tcp", endpoint, cfg)
	if err != nil {
		b.closeAgent()
		return nil, errors.Wrapf(err, "could not establish connection to %s", endpoint)
	}
	b.client = client

	sess, err := client.NewSession()
	if err != nil {
		b.release()
		return nil, errors.Wrap(err, "failed to create ssh session")
	}
	b.sess = sess

	stdoutPipe, err := sess.StdoutPipe()
	if err != nil {
		b.release()
		return nil, errors.Wrap(err, "failed to get stdout pipe")
	}
	stderrPipe, err := sess.StderrPipe()
	if err != nil {
		b.release()
		return nil, errors.Wrap(err, "failed to get stderr pipe")
	}

	if err := sess.Start(job.commandLine()); err != nil {
		b.release()
		return nil, errors.Wrapf(err, "failed to start remote command: %s", job.commandLine())
	}
	job.markRunning(0)

	go b.pump(stdoutPipe, b.stdoutCh)
	go b.pump(stderrPipe, b.stderrCh)
	go func() {
		b.waitErr = sess.Wait()
		close(b.waitDone)
	}()
	return b, nil
}

// knownHostsFiles locates the known_hosts files consulted for host
// verification. A variable so tests can point verification at fixture files.
var knownHostsFiles = defaultKnownHostsFiles

func defaultKnownHostsFiles() []string {
	var files []string
	if sshDir, err := util.SSHDir(); err == nil {
		if p := util.FirstExisting(filepath.Join(sshDir, "known_hosts")); p != "" {
			files = append(files, p)
		}
	}
	if p := util.FirstExisting("/etc/ssh/ssh_known_hosts"); p != "" {
		files = append(files, p)
	}
	return files
}

// trustedHostKeys builds a host key callback from the local known_hosts
// files. Missing files mean no host can be verified, which is a connection
// failure by policy: the library deliberately does not prompt to trust new
// hosts.
func trustedHostKeys() (ssh.HostKeyCallback, error) {
	files := knownHostsFiles()
	if len(files) == 0 {
		return nil, errors.New("no known_hosts file found; remote host cannot be verified")
	}
	callback, err := knownhosts.New(files...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse known_hosts")
	}
	return callback, nil
}

func (b *remoteBackend) authMethods(o remoteOptions) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	keyPaths := make([]string, 0, 3)
	if o.keyPath != "" {
		keyPaths = append(keyPaths, o.keyPath)
	} else if sshDir, err := util.SSHDir(); err == nil {
		for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
			if p := util.FirstExisting(filepath.Join(sshDir, name)); p != "" {
				keyPaths = append(keyPaths, p)
			}
		}
	}
	for _, path := range keyPaths {
		content, err := os.ReadFile(path)
		if err != nil {
			if o.keyPath != "" {
				return nil, errors.Wrapf(err, "failed to read keyfile %q", path)
			}
			continue
		}
		signer, err := ssh.ParsePrivateKey(content)
		if err != nil {
			if o.keyPath != "" {
				return nil, errors.Wrapf(err, "the SSH key %q could not be parsed", path)
			}
			logger.Log.Debugf("skipping unparsable default key %s: %v", path, err)
			continue
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		conn, err := net.Dial("unix", sock)
		if err != nil {
			logger.Log.Debugf("could not open SSH agent socket %q: %v", sock, err)
		} else {
			signers, err := agent.NewClient(conn).Signers()
			if err != nil {
				_ = conn.Close()
				logger.Log.Debugf("error creating signers from SSH agent: %v", err)
			} else {
				b.agentConn = conn
				methods = append(methods, ssh.PublicKeys(signers...))
			}
		}
	}

	if len(methods) == 0 {
		return nil, errors.New("no usable SSH key or agent for authentication")
	}
	return methods, nil
}

func (b *remoteBackend) pump(r io.Reader, ch chan<- []byte) {
	defer close(ch)
	for {
		buf := make([]byte, 4096)
		n, err := r.Read(buf)
		if n > 0 {
			ch <- buf[:n]
		}
		if err != nil {
			return
		}
	}
}

func (b *remoteBackend) finished() bool {
	select {
	case <-b.waitDone:
		return true
	default:
		return false
	}
}

// requestGracefulStop closes the session. There is no remote equivalent of
// signal delivery, so this is also what a forced stop does; a remote
// command that detaches from its controlling session may outlive the Job.
func (b *remoteBackend) requestGracefulStop() error {
	b.release()
	return nil
}

func (b *remoteBackend) requestForcedStop() error {
	b.release()
	return nil
}

// drainOutput appends every chunk currently buffered, never waiting for
// more.
func (b *remoteBackend) drainOutput() {
	drainAvailable(b.stdoutCh, &jobWriter{job: b.job})
	drainAvailable(b.stderrCh, &jobWriter{job: b.job, stderr: true})
}

func drainAvailable(ch <-chan []byte, w io.Writer) {
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(chunk)
		default:
			return
		}
	}
}

func (b *remoteBackend) finalize() int {
	// The session has ended. Ranging each channel both drains any trailing
	// bytes and unblocks a pump stalled on a full buffer; the ranges end
	// when the pumps exit and close their channels.
	for chunk := range b.stdoutCh {
		_, _ = (&jobWriter{job: b.job}).Write(chunk)
	}
	for chunk := range b.stderrCh {
		_, _ = (&jobWriter{job: b.job, stderr: true}).Write(chunk)
	}

	code := -1
	if b.waitErr == nil {
		code = 0
	} else if exitErr, ok := b.waitErr.(*ssh.ExitError); ok {
		code = exitErr.ExitStatus()
	}

	b.release()
	return code
}

func (b *remoteBackend) closeAgent() {
	if b.agentConn != nil {
		_ = b.agentConn.Close()
		b.agentConn = nil
	}
}

// release closes the session, client connection and agent socket. Errors
// from already-closed resources are expected and dropped.
func (b *remoteBackend) release() {
	b.closeOnce.Do(func() {
		if b.sess != nil {
			_ = b.sess.Close()
		}
		if b.client != nil {
			_ = b.client.Close()
		}
		b.closeAgent()
	})
}
