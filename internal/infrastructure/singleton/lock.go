package singleton

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

const (
	// DefaultPort 默认监听端口
	DefaultPort = ":18760"

	// healthProbeTimeout 探测已有实例 /health 的超时
	healthProbeTimeout = 2 * time.Second
)

// ErrAlreadyRunning 端口上已有一个健康的实例在服务
var ErrAlreadyRunning = errors.New("another instance is already serving this port")

// Acquire 通过抢占监听端口实现单实例锁。
// 抢到端口时返回 listener，调用方在 HTTP 服务接管前持有它；
// 端口被一个健康实例占用时返回 ErrAlreadyRunning（调用方应静默退出）；
// 端口被占用但 /health 探测不通过时返回错误，交给人工处理
func Acquire(port string) (net.Listener, error) {
	listener, err := net.Listen("tcp", port)
	if err == nil {
		return listener, nil
	}

	if !isAddrInUse(err) {
		return nil, fmt.Errorf("failed to listen on %s: %w", port, err)
	}

	if peerHealthy(port) {
		return nil, ErrAlreadyRunning
	}
	return nil, fmt.Errorf("port %s is taken but its health check failed, stale process suspected", port)
}

// isAddrInUse 判断监听失败是否因为地址已被占用
func isAddrInUse(err error) bool {
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	// Windows 下的 WSAEADDRINUSE 不经过 syscall.EADDRINUSE，退化为文案匹配
	msg := err.Error()
	return strings.Contains(msg, "address already in use") ||
		strings.Contains(msg, "Only one usage of each socket address")
}

// peerHealthy 探测占用端口的进程是否响应健康检查
func peerHealthy(port string) bool {
	client := &http.Client{Timeout: healthProbeTimeout}

	resp, err := client.Get(fmt.Sprintf("http://localhost%s/health", port))
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
