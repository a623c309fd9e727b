package demo

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/postadepo/server/internal/models"
	"github.com/postadepo/server/internal/store"
	"github.com/postadepo/server/internal/sync"
)

// Email and Password are the built-in demo credentials.
const (
	Email    = "demo@postadepo.com"
	Password = "demo123"
)

var senders = []string{
	"ali.kaya@gmail.com", "mehmet.demir@outlook.com", "fatma.yilmaz@hotmail.com",
	"ahmet.ozkan@gmail.com", "ayse.celik@yahoo.com", "mustafa.arslan@gmail.com",
	"zeynep.koc@outlook.com", "omer.sahin@hotmail.com", "elif.yildiz@gmail.com",
	"burak.ozer@yahoo.com",
}

var subjects = []string{
	"Önemli Toplantı Davetiyesi", "Proje Güncellemesi", "Hesap Bilgileri",
	"Yeni Ürün Lansmanı", "Fatura Bildirimi", "Tatil Planları",
	"İş Başvurusu", "Konferans Davetiyesi", "Sistem Bakımı Bildirimi",
	"Özel İndirim Fırsatı", "Güvenlik Uyarısı", "Etkinlik Duyurusu",
}

var folders = []string{models.FolderInbox, models.FolderSent, models.FolderSpam}

// Seed fills a fresh demo mailbox with generated mail.
func Seed(ctx context.Context, s *store.Store, userID string) error {
	for i := 0; i < 50; i++ {
		if err := s.InsertMail(ctx, generate(userID, folders[rand.Intn(len(folders))])); err != nil {
			return err
		}
	}
	return nil
}

// SyncBatch simulates an incremental sync for the demo account by adding a
// few new inbox messages, mirroring the behavior the frontend expects from
// the sync button when no real account is connected.
func SyncBatch(ctx context.Context, s *store.Store, userID, recipient string) (int, error) {
	const n = 3
	for i := 0; i < n; i++ {
		mail := generate(userID, models.FolderInbox)
		mail.Sender = fmt.Sprintf("sync%d@example.com", i)
		mail.Recipient = recipient
		mail.Subject = fmt.Sprintf("Senkronizasyon Sonucu Yeni E-posta %d", i+1)
		mail.Read = false
		if err := s.InsertMail(ctx, mail); err != nil {
			return i, err
		}
	}
	return n, nil
}

func generate(userID, folder string) *models.Mail {
	sender := senders[rand.Intn(len(senders))]
	subject := subjects[rand.Intn(len(subjects))]
	senderName := titleCase(strings.ReplaceAll(strings.Split(sender, "@")[0], ".", " "))
	content := fmt.Sprintf(
		"Bu bir demo e-posta içeriğidir. %s konusunda detaylı bilgi için lütfen eki kontrol ediniz.\n\nSaygılarımla,\n%s",
		subject, senderName)

	mail := &models.Mail{
		ID:          uuid.NewString(),
		UserID:      userID,
		Folder:      folder,
		Sender:      sender,
		Recipient:   Email,
		Subject:     subject,
		Content:     content,
		ContentType: "text",
		Preview:     sync.Preview(content),
		Date:        time.Now().UTC().Add(-time.Duration(rand.Intn(72)) * time.Hour),
		Read:        rand.Intn(2) == 0,
		Important:   rand.Float64() < 0.3,
		ThreadID:    sync.ThreadID("", subject),
	}
	mail.Size = sync.EstimateSize(mail) + int64(512+rand.Intn(1536))
	return mail
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
