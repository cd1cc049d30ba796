package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/lachopopov/multiagent-system-demo/agent/hitl"
)

// console 把标准输入按行送入通道，驱动循环与人工应答共用同一个读取者。
// 读取被取消时，尚未读到的行留给下一次 ReadLine。
type console struct {
	out    io.Writer
	lines  chan string
	done   chan struct{}
	unread chan string
	err    error
	mu     sync.Mutex
}

func newConsole(in io.Reader, out io.Writer) *console {
	c := &console{
		out:    out,
		lines:  make(chan string),
		unread: make(chan string, 8),
		done:   make(chan struct{}),
	}
	go c.scan(in)
	return c
}

func (c *console) scan(in io.Reader) {
	defer close(c.done)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		c.lines <- scanner.Text()
	}
	c.mu.Lock()
	c.err = scanner.Err()
	c.mu.Unlock()
}

// ReadLine 打印提示并等待一行输入。输入结束时返回 io.EOF。
func (c *console) ReadLine(ctx context.Context, prompt string) (string, error) {
	if prompt != "" {
		fmt.Fprint(c.out, prompt)
	}
	select {
	case line := <-c.unread:
		return line, nil
	default:
	}
	select {
	case line := <-c.unread:
		return line, nil
	case <-ctx.Done():
		fmt.Fprintln(c.out)
		return "", ctx.Err()
	case line := <-c.lines:
		return line, nil
	case <-c.done:
		c.mu.Lock()
		err := c.err
		c.mu.Unlock()
		if err != nil {
			return "", err
		}
		return "", io.EOF
	}
}

// pushBack 退回一行，缓冲满时丢弃
func (c *console) pushBack(line string) {
	select {
	case c.unread <- line:
	default:
	}
}

// humanHandler 在终端上回答人工输入请求。
// 计时由 Boundary 负责：请求结束后 ctx 被取消，读到但已无人接收的行退回给下一次 ReadLine。
func (c *console) humanHandler(b *hitl.Boundary) hitl.Handler {
	return func(ctx context.Context, req hitl.Request) error {
		prompt := req.Prompt
		if prompt == "" {
			prompt = "Enter your response"
		}
		text, err := c.ReadLine(ctx, strings.TrimRight(prompt, ": ")+": ")
		eof := errors.Is(err, io.EOF)
		switch {
		case eof:
			text = "exit"
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := b.Respond(req.ID, text); err != nil {
			if !errors.Is(err, hitl.ErrNotPending) {
				return err
			}
			if !eof {
				c.pushBack(text)
			}
		}
		return nil
	}
}
