package core

import "errors"

var (
	// ErrNoProjects: private chat, user has no projects to act on.
	ErrNoProjects = errors.New("user has no active projects")
	// ErrGroupNotLinked: group chat without a linked project.
	ErrGroupNotLinked = errors.New("group chat is not linked to a project")
	// ErrAlreadyLinked: the group or the project already has a link.
	ErrAlreadyLinked = errors.New("chat or project is already linked")
	// ErrNotReady: launch attempted while the first stage lacks dates.
	ErrNotReady = errors.New("project is not ready to launch")
	// ErrAlreadyLaunched: launch attempted a second time.
	ErrAlreadyLaunched = errors.New("project is already launched")
	// ErrPermissionDenied: the actor's role does not allow the action.
	ErrPermissionDenied = errors.New("role does not permit this action")
	// ErrInvalidTransition: payment status moved outside the lifecycle order.
	ErrInvalidTransition = errors.New("invalid payment status transition")
	// ErrNotFound: entity lookup failed.
	ErrNotFound = errors.New("not found")
)
