package sessions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"path/filepath"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const (
	rootBackupsFolderName = "liftlog-backup"
	sessionsFileChunkSize = 200 // number of sessions in one backup file
)

type GoogleDriveBackupService struct {
	repo              *Repo
	service           *drive.Service
	backupsFolderId   string
	metricsSocketDir  string
	metricsSocketFile string
}

type NewGoogleDriveBackupServiceParams struct {
	CredentialsJson   []byte
	Repo              *Repo
	MetricsSocketDir  string
	MetricsSocketFile string
}

func NewGoogleDriveBackupService(params NewGoogleDriveBackupServiceParams) (*GoogleDriveBackupService, error) {
	// https://github.com/googleapis/google-api-go-client/blob/master/drive/v3/drive-gen.go
	ctx := context.Background()
	driveService, err := drive.NewService(ctx, option.WithCredentialsJSON(params.CredentialsJson))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve drive client: %w", err)
	}

	rootFolderQuery := fmt.Sprintf("mimeType = 'application/vnd.google-apps.folder' and trashed = false and name = '%s'", rootBackupsFolderName)
	log.Println(rootFolderQuery)
	backupFolder, err := driveService.
		Files.List().
		Q(rootFolderQuery).
		Fields("files(id, name)").
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve files: %w", err)
	}

	backupsFolderId := ""
	if len(backupFolder.Files) == 1 {
		rbf := backupFolder.Files[0]
		log.Printf("root backups folder found, %s: %s", rbf.Name, rbf.Id)
		backupsFolderId = rbf.Id
	} else if len(backupFolder.Files) == 0 {
		log.Println("root backups folder not found, will recreate")
	} else {
		rbf := backupFolder.Files[0]
		log.Printf("attention: found %d root backups folders, will take the first one: %s", len(backupFolder.Files), rbf.Id)
		backupsFolderId = rbf.Id
	}

	s := &GoogleDriveBackupService{
		repo:              params.Repo,
		service:           driveService,
		metricsSocketDir:  params.MetricsSocketDir,
		metricsSocketFile: params.MetricsSocketFile,
	}

	if backupsFolderId == "" {
		log.Println("root backups folder not found, recreating ...")
		backupsFolderId, err = s.createRootBackupsFolder()
		if err != nil {
			return nil, fmt.Errorf("failed to create root backups folder: %w", err)
		}
		log.Printf("new root backups folder created: %s", backupsFolderId)
	} else {
		log.Printf("found backups folder ID: %s", backupsFolderId)
	}

	s.backupsFolderId = backupsFolderId

	return s, nil
}

func (s *GoogleDriveBackupService) Reinit(ctx context.Context, baseTime time.Time) error {
	log.Println("sessions backup reinit starting ...")

	err := s.service.Files.
		Delete(s.backupsFolderId).
		Do()
	if err != nil {
		return err
	}

	backupsFolderId, err := s.createRootBackupsFolder()
	if err != nil {
		return fmt.Errorf("failed to create root backups folder: %w", err)
	}

	log.Printf("new root backups folder created: %s", backupsFolderId)

	s.backupsFolderId = backupsFolderId

	return s.DoBackup(ctx, baseTime)
}

func (s *GoogleDriveBackupService) DoBackup(ctx context.Context, baseTime time.Time) error {
	currentAllBackupFiles, err := s.getSessionsBackupFiles(s.backupsFolderId)
	if err != nil {
		return err
	}

	if len(currentAllBackupFiles) == 0 {
		log.Println("backups empty, creating initial backup file ...")
		if err := s.createInitialBackupFile(ctx, baseTime); err != nil {
			return err
		}
		log.Println("initial backup files created!")
		return nil
	}

	log.Println("current backup files:")
	lastCreatedAt := time.Time{}
	for _, file := range currentAllBackupFiles {
		createdAt, err := time.Parse(time.RFC3339, file.CreatedTime)
		if err != nil {
			log.Printf(" ---> error parsing created at for file %s: %s", file.Name, err)
			continue
		}
		log.Printf(" -- [%v]: %s (%s)\n", createdAt, file.Name, file.Id)

		if createdAt.After(lastCreatedAt) {
			lastCreatedAt = createdAt
		}
	}

	sessionsToBackup, err := s.repo.ListCompletedAsc(ctx, &lastCreatedAt)
	if err != nil {
		return fmt.Errorf("failed to get next backup sessions: %w", err)
	}

	if len(sessionsToBackup) == 0 {
		log.Println("no new sessions to backup, done")
		return nil
	}

	log.Printf(" ---- backing up %d sessions completed since %v", len(sessionsToBackup), lastCreatedAt)

	nextBackupFileName := fmt.Sprintf("liftlog-sessions-%d-%d-%d", baseTime.Day(), baseTime.Month(), baseTime.Year())
	fileCounter := 1
	for {
		nameExists := false
		for _, file := range currentAllBackupFiles {
			if file.Name == (nextBackupFileName + ".json") {
				nameExists = true
				break
			}
		}
		if nameExists {
			fileCounter++
			nextBackupFileName = fmt.Sprintf("%s_%d", nextBackupFileName, fileCounter)
		} else {
			break
		}
	}

	if err := s.backupSessions(sessionsToBackup, nextBackupFileName); err != nil {
		return fmt.Errorf("failed to backup sessions: %w", err)
	}

	log.Printf("next backup since %v successfully saved: %s", lastCreatedAt, nextBackupFileName)

	if s.metricsSocketDir != "" {
		trySendMetrics(baseTime, len(sessionsToBackup), s.metricsSocketDir, s.metricsSocketFile)
	}

	return nil
}

func (s *GoogleDriveBackupService) createRootBackupsFolder() (string, error) {
	backupsFolderMeta := &drive.File{
		Name:     rootBackupsFolderName,
		MimeType: "application/vnd.google-apps.folder",
	}

	bfRes, err := s.service.
		Files.Create(backupsFolderMeta).
		Fields("id").
		Do()
	if err != nil {
		return "", err
	}

	if pId, err := s.updateFilePermission(bfRes.Id); err != nil {
		return bfRes.Id, fmt.Errorf("failed to create additional permission for root backup folder: %s", err)
	} else {
		log.Printf("permission %s created for root backup folder %s", pId, bfRes.Id)
	}

	return bfRes.Id, nil
}

func (s *GoogleDriveBackupService) createInitialBackupFile(ctx context.Context, baseTime time.Time) error {
	allSessions, err := s.repo.ListCompletedAsc(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to get sessions from db: %w", err)
	}

	log.Printf("initial backup of %d sessions starting ...", len(allSessions))

	baseFileName := fmt.Sprintf("initial-%d-%d-%d", baseTime.Day(), baseTime.Month(), baseTime.Year())
	if err := s.backupSessions(allSessions, baseFileName); err != nil {
		return fmt.Errorf("failed to backup sessions: %w", err)
	}

	if s.metricsSocketDir != "" {
		trySendMetrics(baseTime, len(allSessions), s.metricsSocketDir, s.metricsSocketFile)
	}

	return nil
}

func (s *GoogleDriveBackupService) backupSessions(sessionsToBackup []Session, baseFileName string) error {
	chunks := len(sessionsToBackup) / sessionsFileChunkSize
	fromIndex, toIndex := 0, sessionsFileChunkSize
	if len(sessionsToBackup)%sessionsFileChunkSize > 0 {
		chunks++
	}

	if len(sessionsToBackup) < sessionsFileChunkSize {
		toIndex = len(sessionsToBackup)
	}

	for i := 1; i <= chunks; i++ {
		nextFileName := fmt.Sprintf("%s_%d.json", baseFileName, i)
		nextSessions := sessionsToBackup[fromIndex:toIndex]

		log.Printf("%s: create backup file with %d sessions [from %d to %d] ...", nextFileName, len(nextSessions), fromIndex, toIndex)

		nextSessionsJson, err := json.Marshal(nextSessions)
		if err != nil {
			return fmt.Errorf("%s failed to marshal sessions: %w", nextFileName, err)
		}

		log.Printf("%s: creating file on google drive ...", nextFileName)
		fileMeta := &drive.File{
			Name: nextFileName,
			// https://developers.google.com/drive/api/v3/mime-types
			MimeType: "application/vnd.google-apps.file",
			Parents:  []string{s.backupsFolderId},
		}

		nextBackupChunkFile, err := s.service.
			Files.Create(fileMeta).
			Fields("id, parents").
			Media(bytes.NewReader(nextSessionsJson)).
			Do()
		if err != nil {
			return fmt.Errorf("%s: failed to create sessions backup file: %w", nextFileName, err)
		}

		permissionId, err := s.updateFilePermission(nextBackupChunkFile.Id)
		if err != nil {
			return fmt.Errorf("%s: failed to create additional permission: %s", nextFileName, err)
		}

		log.Printf("%s: backup file [%s] [permission %s] saved: %s", nextFileName, fileMeta.Name, permissionId, nextBackupChunkFile.Id)

		fromIndex = toIndex
		toIndex = toIndex + sessionsFileChunkSize
		if toIndex >= len(sessionsToBackup) {
			toIndex = len(sessionsToBackup)
		}
	}

	return nil
}

func (s *GoogleDriveBackupService) updateFilePermission(fileId string) (string, error) {
	permission := &drive.Permission{
		EmailAddress: "lazar.dusan.veliki@gmail.com",
		Type:         "user",
		Role:         "reader",
	}

	createdPermission, err := s.service.Permissions.
		Create(fileId, permission).
		Do()
	if err != nil {
		return "", err
	}

	return createdPermission.Id, nil
}

func (s *GoogleDriveBackupService) getSessionsBackupFiles(backupFolderId string) ([]*drive.File, error) {
	bQuery := fmt.Sprintf("'%s' in parents and mimeType != 'application/vnd.google-apps.folder' and trashed = false", backupFolderId)
	backups, err := s.service.
		Files.List().
		Q(bQuery).
		Fields("files(id, name, createdTime)").
		Do()
	if err != nil {
		return nil, err
	}

	return backups.Files, nil
}

// trySendMetrics reports the backup size and duration to the main service
// over its unix socket. Backup tool failures to report are logged and
// swallowed, the backup itself already succeeded.
func trySendMetrics(beginTimestamp time.Time, sessionsCount int, socketAddrDir, socketFileName string) {
	socket := filepath.Join(socketAddrDir, socketFileName)
	conn, err := net.DialTimeout("unix", socket, 10*time.Second)
	if err != nil {
		log.Printf("dial backup metrics unix socket %s: %s", socket, err)
		return
	}
	defer func() { _ = conn.Close() }()

	if err := conn.SetDeadline(time.Now().Add(10 * time.Second)); err != nil {
		log.Printf("backup metrics conn, set deadline: %s", err)
		return
	}

	duration := time.Since(beginTimestamp).Seconds()
	msg := fmt.Sprintf("sessions::%d||duration::%f", sessionsCount, duration)
	if _, err := conn.Write([]byte(msg)); err != nil {
		log.Printf("backup metrics conn, send: %s", err)
		return
	}

	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	if err != nil {
		log.Printf("backup metrics conn, read response: %s", err)
		return
	}

	log.Printf("backup metrics sent, response: %s", buf[:n])
}
