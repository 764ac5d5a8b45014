package ankiconnect

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient 基于 testify/mock 的客户端实现，供测试使用
type MockClient struct {
	mock.Mock
}

// MockClient_Expecter 提供类型安全的期望设置
type MockClient_Expecter struct {
	mock *mock.Mock
}

// NewMockClient 创建Mock客户端，测试结束时校验期望
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// EXPECT 返回期望设置器
func (m *MockClient) EXPECT() *MockClient_Expecter {
	return &MockClient_Expecter{mock: &m.Mock}
}

// Version 模拟版本查询
func (m *MockClient) Version(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// Version 设置 Version 的期望
func (e *MockClient_Expecter) Version(ctx any) *mock.Call {
	return e.mock.On("Version", ctx)
}

// Ping 模拟连通性检查
func (m *MockClient) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Ping 设置 Ping 的期望
func (e *MockClient_Expecter) Ping(ctx any) *mock.Call {
	return e.mock.On("Ping", ctx)
}

// DeckNames 模拟牌组列表查询
func (m *MockClient) DeckNames(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	var names []string
	if v := args.Get(0); v != nil {
		names = v.([]string)
	}
	return names, args.Error(1)
}

// DeckNames 设置 DeckNames 的期望
func (e *MockClient_Expecter) DeckNames(ctx any) *mock.Call {
	return e.mock.On("DeckNames", ctx)
}

// CreateDeck 模拟创建牌组
func (m *MockClient) CreateDeck(ctx context.Context, name string) (int64, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(int64), args.Error(1)
}

// CreateDeck 设置 CreateDeck 的期望
func (e *MockClient_Expecter) CreateDeck(ctx, name any) *mock.Call {
	return e.mock.On("CreateDeck", ctx, name)
}

// AddNote 模拟添加笔记
func (m *MockClient) AddNote(ctx context.Context, note Note) (int64, error) {
	args := m.Called(ctx, note)
	return args.Get(0).(int64), args.Error(1)
}

// AddNote 设置 AddNote 的期望
func (e *MockClient_Expecter) AddNote(ctx, note any) *mock.Call {
	return e.mock.On("AddNote", ctx, note)
}

// ModelFieldNames 模拟字段名查询
func (m *MockClient) ModelFieldNames(ctx context.Context, model string) ([]string, error) {
	args := m.Called(ctx, model)
	var names []string
	if v := args.Get(0); v != nil {
		names = v.([]string)
	}
	return names, args.Error(1)
}

// ModelFieldNames 设置 ModelFieldNames 的期望
func (e *MockClient_Expecter) ModelFieldNames(ctx, model any) *mock.Call {
	return e.mock.On("ModelFieldNames", ctx, model)
}

var _ Client = (*MockClient)(nil)
